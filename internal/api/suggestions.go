package api

import "net/http"

type suggestion struct {
	Icon   string `json:"icon"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

var starterSuggestions = []suggestion{
	{
		Icon:   "📄",
		Title:  "Resume Review",
		Prompt: "How can I improve my resume for a software engineering role?",
	},
	{
		Icon:   "🎯",
		Title:  "Interview Prep",
		Prompt: "What are the most common interview questions for freshers?",
	},
	{
		Icon:   "💼",
		Title:  "Job Search",
		Prompt: "What's the best strategy for finding my first job?",
	},
	{
		Icon:   "🗺️",
		Title:  "Career Path",
		Prompt: "What skills should I learn to become a full-stack developer?",
	},
}

// suggestions handles GET /api/suggestions: starter prompts for new users.
func suggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]suggestion{"suggestions": starterSuggestions})
}
