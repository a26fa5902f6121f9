package handler

import "net/http"

// ExampleHandler serves the fixed endpoints that demonstrate role and permission gates.
type ExampleHandler struct{}

func NewExampleHandler() *ExampleHandler {
	return &ExampleHandler{}
}

func (h *ExampleHandler) AdminDashboard(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"msg": "Admin dashboard"}, nil)
}

func (h *ExampleHandler) ViewReports(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"msg": "Reports"}, nil)
}

func (h *ExampleHandler) EditArticles(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"msg": "Article editor"}, nil)
}
