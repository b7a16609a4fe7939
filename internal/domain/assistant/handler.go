// Package assistant exposes the ARIA endpoints: conversational queries,
// report-drafting suggestions, dictation transcription, and speech playback.
// Each is a single-shot proxy to the configured AI provider.
package assistant

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aria-health/aria/internal/platform/ai"
)

const (
	queryMaxTokens  = 400
	assistMaxTokens = 500

	defaultVoice = "nova"
)

const personaPrompt = `You are ARIA — Advanced Radiology Intelligence Assistant at King's College Hospital NHS Foundation Trust.
You are a sophisticated, calm, professional female AI assistant embedded in the hospital's radiology workbench.
You assist radiologists and clinicians with workflow queries, study prioritisation, and report assistance.
You never make definitive clinical diagnoses. You always recommend clinical correlation.
Respond concisely and professionally. Maximum 3 sentences unless detail is requested.
Always add: 'This is AI-assisted information — clinical judgment must prevail.'`

const assistPromptTemplate = `You are ARIA, an AI radiology assistant at King's College Hospital.
Based on these findings, suggest a professional radiology report impression and differential diagnosis.

Modality: %s
Body Part: %s
Clinical Indication: %s
Findings: %s

Provide:
1. A concise professional Impression (2-3 sentences)
2. Key differentials (bullet list, max 4)
3. Recommended follow-up if appropriate

IMPORTANT: Prefix with: 'AI-ASSISTED SUGGESTION — Requires radiologist review and sign-off.'`

type Handler struct {
	client ai.Client
}

func NewHandler(client ai.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes registers the ARIA endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/aria/query", h.Query)
	api.POST("/aria/assist-report", h.AssistReport)
	api.POST("/aria/transcribe", h.Transcribe)
	api.POST("/aria/speak", h.Speak)
}

type queryRequest struct {
	Query string `json:"query"`
}

// Query answers a free-text question under the ARIA persona. Provider
// failures degrade to an inline message rather than an error status so the
// chat panel stays usable.
func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	answer, err := h.client.CompleteText(c.Request().Context(), personaPrompt, req.Query, queryMaxTokens)
	if err != nil {
		answer = fmt.Sprintf("ARIA is temporarily unavailable: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"response": answer})
}

type assistRequest struct {
	Modality   string `json:"modality"`
	BodyPart   string `json:"body_part"`
	Indication string `json:"indication"`
	Findings   string `json:"findings"`
}

func (h *Handler) AssistReport(c echo.Context) error {
	var req assistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	prompt := fmt.Sprintf(assistPromptTemplate, req.Modality, req.BodyPart, req.Indication, req.Findings)
	suggestion, err := h.client.CompleteText(c.Request().Context(), "", prompt, assistMaxTokens)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"suggestion": suggestion})
}

func (h *Handler) Transcribe(c echo.Context) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing audio")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	transcript, err := h.client.TranscribeAudio(c.Request().Context(), "audio.webm", audio)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"transcript": transcript})
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handler) Speak(c echo.Context) error {
	var req speakRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Voice == "" {
		req.Voice = defaultVoice
	}

	audio, err := h.client.SynthesizeSpeech(c.Request().Context(), req.Text, req.Voice)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename=aria.mp3`)
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}
