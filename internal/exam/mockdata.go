package exam

// MockExams are the built-in exams served by the take-exam page.
var MockExams = []Exam{
	{
		ID:              "hsa-math-01",
		Title:           "HSA - Toán học và xử lý số liệu (đề 1)",
		Subject:         "math",
		DurationMinutes: 30,
		Questions: []Question{
			{
				ID:            1,
				Content:       "Nghiệm của phương trình 2x - 6 = 0 là",
				Options:       []string{"x = 2", "x = 3", "x = -3", "x = 6"},
				CorrectAnswer: "x = 3",
				Explanation:   "2x = 6 nên x = 3.",
			},
			{
				ID:            2,
				Content:       "Đạo hàm của hàm số y = x^3 là",
				Options:       []string{"y' = 3x^2", "y' = x^2", "y' = 3x", "y' = x^3/3"},
				CorrectAnswer: "y' = 3x^2",
				Explanation:   "(x^n)' = n·x^(n-1).",
			},
			{
				ID:            3,
				Content:       "Giá trị của sin 30° bằng",
				Options:       []string{"1/2", "√2/2", "√3/2", "1"},
				CorrectAnswer: "1/2",
				Explanation:   "sin 30° = 1/2.",
			},
			{
				ID:            4,
				Content:       "Diện tích hình tròn bán kính r = 2 là",
				Options:       []string{"2π", "4π", "8π", "16π"},
				CorrectAnswer: "4π",
				Explanation:   "S = πr² = 4π.",
			},
			{
				ID:            5,
				Content:       "Trung bình cộng của 2, 4, 6, 8 là",
				Options:       []string{"4", "5", "6", "20"},
				CorrectAnswer: "5",
				Explanation:   "(2 + 4 + 6 + 8) / 4 = 5.",
			},
			{
				ID:            6,
				Content:       "log₂ 8 bằng",
				Options:       []string{"2", "3", "4", "8"},
				CorrectAnswer: "3",
				Explanation:   "2³ = 8.",
			},
		},
	},
	{
		ID:              "tsa-thinking-01",
		Title:           "TSA - Tư duy toán học (đề 1)",
		Subject:         "math",
		DurationMinutes: 20,
		Questions: []Question{
			{
				ID:            1,
				Content:       "Số tiếp theo của dãy 1, 1, 2, 3, 5, 8, ... là",
				Options:       []string{"11", "12", "13", "21"},
				CorrectAnswer: "13",
				Explanation:   "Mỗi số bằng tổng hai số liền trước: 5 + 8 = 13.",
			},
			{
				ID:            2,
				Content:       "Gieo một con xúc xắc cân đối. Xác suất ra mặt chẵn là",
				Options:       []string{"1/6", "1/3", "1/2", "2/3"},
				CorrectAnswer: "1/2",
				Explanation:   "Có 3 mặt chẵn trên 6 mặt.",
			},
			{
				ID:            3,
				Content:       "Một người đi 60 km trong 1,5 giờ. Vận tốc trung bình là",
				Options:       []string{"30 km/h", "40 km/h", "45 km/h", "90 km/h"},
				CorrectAnswer: "40 km/h",
				Explanation:   "v = 60 / 1,5 = 40 km/h.",
			},
			{
				ID:            4,
				Content:       "Có bao nhiêu cách xếp 3 bạn vào 3 ghế?",
				Options:       []string{"3", "6", "9", "27"},
				CorrectAnswer: "6",
				Explanation:   "3! = 6.",
			},
			{
				ID:            5,
				Content:       "Tổng các góc trong của một tam giác bằng",
				Options:       []string{"90°", "180°", "270°", "360°"},
				CorrectAnswer: "180°",
				Explanation:   "Định lý tổng ba góc trong tam giác.",
			},
		},
	},
	{
		ID:              "chapter-calculus-01",
		Title:           "Chương Đạo hàm - Bài kiểm tra 15 phút",
		Subject:         "math",
		DurationMinutes: 15,
		Questions: []Question{
			{
				ID:            1,
				Content:       "Đạo hàm của y = sin x là",
				Options:       []string{"cos x", "-cos x", "sin x", "-sin x"},
				CorrectAnswer: "cos x",
				Explanation:   "(sin x)' = cos x.",
			},
			{
				ID:            2,
				Content:       "Đạo hàm của y = e^x là",
				Options:       []string{"x·e^(x-1)", "e^x", "ln x", "1/x"},
				CorrectAnswer: "e^x",
				Explanation:   "(e^x)' = e^x.",
			},
			{
				ID:            3,
				Content:       "Hàm số y = x² - 4x + 3 đạt cực tiểu tại",
				Options:       []string{"x = 1", "x = 2", "x = 3", "x = 4"},
				CorrectAnswer: "x = 2",
				Explanation:   "y' = 2x - 4 = 0 khi x = 2, y'' = 2 > 0.",
			},
			{
				ID:            4,
				Content:       "lim (x→0) sin x / x bằng",
				Options:       []string{"0", "1", "∞", "Không tồn tại"},
				CorrectAnswer: "1",
				Explanation:   "Giới hạn lượng giác cơ bản.",
			},
		},
	},
}
