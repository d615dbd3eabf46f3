package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

const (
	headerContextSource      = "X-Context-Source"
	headerRetrievalCount     = "X-Retrieval-Count"
	headerExpansionTriggered = "X-Expansion-Triggered"
	headerExpansionPass      = "X-Expansion-Pass"
	headerRetrievalLatency   = "X-Retrieval-Latency-Ms"
)

type contextRequest struct {
	Question                 string `json:"question"`
	PreviousUserMessage      string `json:"previous_user_message"`
	PreviousAssistantSummary string `json:"previous_assistant_summary"`
}

func (rt *Router) resolveContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode context request", errors.New("invalid json")))
		return
	}

	ctx, cancel := rt.withTimeout(r.Context())
	defer cancel()

	start := time.Now()
	out, err := rt.resolver.Resolve(ctx, domain.ContextRequest{
		Question: req.Question,
		Prior: domain.PriorTurn{
			PreviousUserMessage:      req.PreviousUserMessage,
			PreviousAssistantSummary: req.PreviousAssistantSummary,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	elapsed := time.Since(start)

	rt.recordContext(out, elapsed)
	setContextHeaders(w.Header(), out, elapsed)
	writeJSON(w, http.StatusOK, out)
}

func setContextHeaders(h http.Header, out *domain.ChatContext, elapsed time.Duration) {
	h.Set(headerContextSource, string(out.Source))
	h.Set(headerRetrievalCount, strconv.Itoa(len(out.Results)))

	triggered := out.Expansion != nil && out.Expansion.Triggered
	h.Set(headerExpansionTriggered, strconv.FormatBool(triggered))
	pass := "1"
	if out.Expansion != nil && out.Expansion.UsedPass2 {
		pass = "2"
	}
	h.Set(headerExpansionPass, pass)
	h.Set(headerRetrievalLatency, strconv.FormatFloat(float64(elapsed.Microseconds())/1000.0, 'f', 2, 64))
}

func (rt *Router) recordContext(out *domain.ChatContext, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	verbatim := out.ExactMatch != nil && out.ExactMatch.Verbatim
	rt.metrics.RecordContext(serviceName, string(out.Source), verbatim, len(out.Results), elapsed)
	if out.Expansion != nil {
		rt.metrics.RecordExpansion(serviceName, string(out.Expansion.Reason), out.Expansion.UsedPass2, out.Expansion.Pass2Error != "")
	}
}
