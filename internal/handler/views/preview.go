// Package views renders the HTML fragments served by the admin API.
package views

//go:generate templ generate

import (
	"context"
	"strings"

	"github.com/pavelanni/examprep/internal/model"
)

func imageURL(ctx context.Context, src string) string {
	if strings.HasPrefix(src, "/") {
		return model.BasePathFromContext(ctx) + src
	}
	return src
}
