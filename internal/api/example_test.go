package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/JakeFAU/leadcapture/internal/api"
	"github.com/JakeFAU/leadcapture/internal/storage/memory"
)

// ExampleNewServer submits one lead to an in-memory lead service.
func ExampleNewServer() {
	repo, err := memory.NewSeededLeadStore()
	if err != nil {
		panic(err)
	}
	server, err := api.NewServer(api.Config{Repo: repo, QualifiedThreshold: 70})
	if err != nil {
		panic(err)
	}

	body := `{"name":"Ada","email":"ada@example.com","experienceLevel":"expert",` +
		`"interests":["travel_sales"],"motivationLevel":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var resp struct {
		Message string `json:"message"`
		LeadID  int64  `json:"leadId"`
		Score   int    `json:"score"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		panic(err)
	}
	fmt.Println(rec.Code, resp.Message, resp.LeadID, resp.Score)
	// Output: 200 Lead successfully captured 1 93
}
