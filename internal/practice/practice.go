// Package practice classifies knowledge-component progress records into
// dashboard categories and pages through them.
package practice

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/examprep/internal/model"
)

// PageSize is the fixed number of records per dashboard page.
const PageSize = 9

// Category is a dashboard topic bucket.
type Category string

const (
	CategoryAll          Category = ""
	CategoryAlgebra      Category = "algebra"
	CategoryGeometry     Category = "geometry"
	CategoryTrigonometry Category = "trigonometry"
	CategoryCalculus     Category = "calculus"
	CategoryStatistics   Category = "statistics"
	CategoryOther        Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAlgebra,
	CategoryGeometry,
	CategoryTrigonometry,
	CategoryCalculus,
	CategoryStatistics,
	CategoryOther,
}

// Valid reports whether c is a known category or the empty "all" filter.
func (c Category) Valid() bool {
	switch c {
	case CategoryAll, CategoryAlgebra, CategoryGeometry, CategoryTrigonometry,
		CategoryCalculus, CategoryStatistics, CategoryOther:
		return true
	}
	return false
}

type rule struct {
	category Category
	keywords []string
}

// rules are checked in order and the first match wins. Trigonometry and
// calculus come before algebra because their tags often mention "hàm số".
var rules = []rule{
	{CategoryTrigonometry, []string{"lượng giác", "trigonometr", "trig"}},
	{CategoryCalculus, []string{"đạo hàm", "tích phân", "nguyên hàm", "giới hạn", "calculus", "derivative", "integral", "limit"}},
	{CategoryStatistics, []string{"thống kê", "xác suất", "tổ hợp", "statistic", "probability", "combinator"}},
	{CategoryGeometry, []string{"hình học", "hình", "vectơ", "vector", "geometr"}},
	{CategoryAlgebra, []string{"đại số", "phương trình", "bất phương trình", "hàm số", "algebra", "equation", "polynomial"}},
}

func fold(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(norm.NFC.String(s))
}

var foldedRules = func() []rule {
	out := make([]rule, len(rules))
	for i, r := range rules {
		kw := make([]string, len(r.keywords))
		for j, k := range r.keywords {
			kw[j] = fold(k)
		}
		out[i] = rule{category: r.category, keywords: kw}
	}
	return out
}()

// CategoryFromTag maps a knowledge-component tag to its category using a
// case-insensitive substring match. Unmatched tags are CategoryOther.
func CategoryFromTag(tag string) Category {
	t := fold(tag)
	if strings.TrimSpace(t) == "" {
		return CategoryOther
	}
	for _, r := range foldedRules {
		for _, k := range r.keywords {
			if strings.Contains(t, k) {
				return r.category
			}
		}
	}
	return CategoryOther
}

// Filter keeps the records of one category in their original order.
// CategoryAll keeps everything.
func Filter(records []model.KCProgress, c Category) []model.KCProgress {
	out := make([]model.KCProgress, 0, len(records))
	for _, r := range records {
		if c == CategoryAll || CategoryFromTag(r.Tag) == c {
			out = append(out, r)
		}
	}
	return out
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// Paginate returns page (1-based) of items. The page number is clamped to
// [1, TotalPages]; an empty list has zero pages and reports page 1.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = PageSize
	}
	n := len(items)
	pages := (n + size - 1) / size
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	p := Page[T]{Page: page, PageSize: size, TotalPages: pages, TotalItems: n, Items: []T{}}
	start := (page - 1) * size
	if start >= n {
		return p
	}
	end := min(start+size, n)
	p.Items = items[start:end]
	return p
}

// Entry is a progress record with its derived category.
type Entry struct {
	model.KCProgress
	Category Category `json:"category"`
}

// Query selects a dashboard page. When Category differs from PrevCategory
// the page is reset to 1.
type Query struct {
	Category     Category
	PrevCategory Category
	Page         int
}

// Dashboard is the practice list view.
type Dashboard struct {
	Category Category         `json:"category"`
	Counts   map[Category]int `json:"counts"`
	Page[Entry]
}

// BuildDashboard classifies, filters and pages records.
func BuildDashboard(records []model.KCProgress, q Query) Dashboard {
	page := q.Page
	if q.Category != q.PrevCategory {
		page = 1
	}
	counts := make(map[Category]int, len(Categories))
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		c := CategoryFromTag(r.Tag)
		counts[c]++
		if q.Category == CategoryAll || c == q.Category {
			entries = append(entries, Entry{KCProgress: r, Category: c})
		}
	}
	return Dashboard{
		Category: q.Category,
		Counts:   counts,
		Page:     Paginate(entries, page, PageSize),
	}
}
