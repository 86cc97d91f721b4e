package routes

import (
	"net/http"
	"strings"
	"time"

	"compliance-rag-assistant/internal/pipeline"
	"compliance-rag-assistant/internal/prompt"
	"compliance-rag-assistant/middleware"
	"compliance-rag-assistant/models"
	"compliance-rag-assistant/utils"

	"github.com/gin-gonic/gin"
)

// AskRequest is the body of both ask endpoints.
type AskRequest struct {
	Question string `json:"question"`
}

// Source is a retrieved chunk as shown to the user.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Score   float32 `json:"score"`
	Text    string  `json:"text"`
}

// AskResponse is returned by /api/ask and sent as the stream's done event.
type AskResponse struct {
	Answer     string                 `json:"answer"`
	Sources    []Source               `json:"sources"`
	References []prompt.ReferenceLink `json:"references"`
	RequestID  string                 `json:"request_id"`
}

type askHandler struct {
	pipeline *pipeline.Context
	timeout  time.Duration
}

func SetupAskRoutes(router *gin.Engine, pc *pipeline.Context, timeout time.Duration) {
	h := &askHandler{pipeline: pc, timeout: timeout}

	api := router.Group("/api")
	api.POST("/ask", h.ask)
	api.POST("/ask/stream", h.askStream)

	api.GET("/references", func(c *gin.Context) {
		c.JSON(http.StatusOK, pc.Assembler().Table())
	})
	api.GET("/examples", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"questions": prompt.ExampleQuestions})
	})
}

func bindQuestion(c *gin.Context) (string, bool) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return "", false
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		utils.RespondWithPipelineError(c, pipeline.ErrEmptyQuestion)
		return "", false
	}
	return q, true
}

func (h *askHandler) ask(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}

	ctx, cancel := utils.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	s, err := h.pipeline.Ask(ctx, question)
	if err != nil {
		utils.RespondWithPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(c, s))
}

// askStream answers over server-sent events: one sources event once
// retrieval is done, fragment events while the answer is generated, and a
// final done or error event.
func (h *askHandler) askStream(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}

	ctx, cancel := utils.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sent, announced := 0, false
	for s := range h.pipeline.AskStream(ctx, question) {
		switch {
		case s.Err() != nil:
			status, code, message := utils.ClassifyError(s.Err())
			_ = c.Error(s.Err())
			c.SSEvent("error", gin.H{
				"error_code": code,
				"status":     status,
				"message":    message,
				"partial":    s.Answer(),
			})
		case s.Stage() == pipeline.Generating && !announced:
			announced = true
			c.SSEvent("sources", gin.H{"sources": toSources(s.Sources())})
		case s.Stage() == pipeline.Generating:
			answer := s.Answer()
			if len(answer) > sent {
				c.SSEvent("fragment", gin.H{"text": answer[sent:]})
				sent = len(answer)
			}
		case s.Stage() == pipeline.Done:
			c.SSEvent("done", h.response(c, s))
		default:
			continue
		}
		c.Writer.Flush()
	}
}

func (h *askHandler) response(c *gin.Context, s pipeline.State) AskResponse {
	refs := h.pipeline.Assembler().Table().Mentioned(s.Answer())
	if refs == nil {
		refs = []prompt.ReferenceLink{}
	}
	return AskResponse{
		Answer:     s.Answer(),
		Sources:    toSources(s.Sources()),
		References: refs,
		RequestID:  middleware.GetRequestID(c),
	}
}

func toSources(results []models.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		out = append(out, Source{
			ChunkID: r.ChunkID,
			Source:  r.Metadata[models.MetaSource],
			Title:   r.Metadata[models.MetaTitle],
			Score:   r.Score,
			Text:    r.Text,
		})
	}
	return out
}
