package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"grimm.is/speedctl/internal/api/openapi"
	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/clock"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/i18n"
	"grimm.is/speedctl/internal/metrics"
	"grimm.is/speedctl/internal/operation"
)

// operationHandler serves one registered operation. Parameter values are
// taken from the path segment, a JSON body, then the query or form, in that
// order. Empty values count as absent so the declared default applies.
func (s *Server) operationHandler(op operation.Operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		args, raw, err := requestArgs(op, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, i18n.MsgInvalidRequest, "body too large")
				return
			}
			WriteError(w, http.StatusBadRequest, i18n.T(r.Context(), i18n.MsgInvalidRequest, "malformed body"), err.Error())
			return
		}

		start := clock.Now()
		res, err := s.dispatcher.Invoke(op.Name, args...)
		elapsed := time.Since(start)

		payloadLen := 0
		if res != nil {
			payloadLen = len(res.Payload)
			raw = res.Args
		}
		s.recordAudit(r, op.Name, raw, err, elapsed, payloadLen)

		if err != nil {
			s.writeDispatchError(w, r, op, err)
			return
		}
		writePayload(w, http.StatusOK, res.Payload)
	})
}

// requestArgs collects the declared parameters of op from r. raw holds the
// values as received, for the audit trail.
func requestArgs(op operation.Operation, r *http.Request) (args []any, raw []string, err error) {
	if op.Arity() == 0 {
		return nil, nil, nil
	}

	var body map[string]any
	if r.Method == http.MethodPost && isJSON(r.Header.Get("Content-Type")) {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, err
		}
	}

	for _, p := range op.Params {
		if v := r.PathValue(p.Name); v != "" {
			args = append(args, v)
			raw = append(raw, v)
			continue
		}
		// A JSON null counts as absent, like an empty form value
		if v, ok := body[p.Name]; ok && v != nil {
			args = append(args, v)
			raw = append(raw, fmt.Sprint(v))
			continue
		}
		if err := r.ParseForm(); err != nil {
			return nil, nil, err
		}
		if v := r.Form.Get(p.Name); v != "" {
			args = append(args, v)
			raw = append(raw, v)
			continue
		}
		// Positional: a missing value ends the vector so defaults fill the rest
		break
	}
	return args, raw, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// writeDispatchError maps a dispatch error onto the HTTP response.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, op operation.Operation, err error) {
	ctx := r.Context()

	var werr *dispatch.WorkerError
	switch {
	case errors.As(err, &werr):
		if werr.Payload != "" {
			writePayload(w, http.StatusBadGateway, werr.Payload)
			return
		}
		WriteErrorCtx(w, r, http.StatusBadGateway, i18n.MsgWorkerFailed, werr.ExitCode)

	case errors.Is(err, dispatch.ErrUnknownOperation):
		WriteErrorCtx(w, r, http.StatusNotFound, i18n.MsgUnknownOperation, op.Name)

	case errors.Is(err, dispatch.ErrArgumentMismatch):
		WriteError(w, http.StatusBadRequest, i18n.T(ctx, i18n.MsgArgumentMismatch, op.Name, op.Arity()), err.Error())

	case errors.Is(err, dispatch.ErrInvalidArgument):
		name := "argument"
		if op.Arity() > 0 {
			name = op.Params[0].Name
		}
		WriteError(w, http.StatusBadRequest, i18n.T(ctx, i18n.MsgInvalidArgument, name), err.Error())

	case errors.Is(err, dispatch.ErrWorkerUnavailable):
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgWorkerUnavailable)

	default:
		s.logger.Error("Unclassified dispatch error", "operation", op.Name, "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgInternalError)
	}
}

const maxAuditEndpointLen = 64

// handleUnknownEndpoint answers requests under the service prefix that no
// operation route matched.
func (s *Server) handleUnknownEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")

	if _, err := s.registry.ByEndpoint(endpoint); err == nil {
		w.Header().Set("Allow", "GET, POST")
		WriteErrorCtx(w, r, http.StatusMethodNotAllowed, i18n.MsgMethodNotAllowed, r.Method)
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveInvocation(endpoint, dispatch.OutcomeUnknownOperation, 0)
	}
	// Caller text never becomes the operation name, and only a bounded
	// prefix reaches the error column
	shown := endpoint
	if len(shown) > maxAuditEndpointLen {
		shown = shown[:maxAuditEndpointLen] + "..."
	}
	s.recordAudit(r, metrics.OperationLabelUnknown, nil, fmt.Errorf("%w: endpoint %q", dispatch.ErrUnknownOperation, shown), 0, 0)
	WriteErrorCtx(w, r, http.StatusNotFound, i18n.MsgUnknownOperation, endpoint)
}

// recordAudit writes one invocation to the audit store, or to the log when
// the server was built with AuditLog and no store.
// Failures are logged and never fail the request.
func (s *Server) recordAudit(r *http.Request, name string, args []string, err error, elapsed time.Duration, payloadLen int) {
	if s.audit == nil {
		if s.auditLog {
			s.logger.Audit(name, dispatch.Outcome(err), "api", map[string]any{
				"client_ip":  getClientIP(r),
				"request_id": RequestID(r.Context()),
				"duration":   elapsed,
			})
		}
		return
	}

	rec := audit.Record{
		Operation:  name,
		Args:       args,
		Outcome:    dispatch.Outcome(err),
		ClientIP:   getClientIP(r),
		RequestID:  RequestID(r.Context()),
		Source:     "api",
		Duration:   elapsed,
		PayloadLen: payloadLen,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	_, werr := s.audit.Write(rec)
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(werr)
	}
	if werr != nil {
		s.logger.Warn("Failed to write audit record", "operation", name, "error", werr)
	}
}

// OperationInfo describes one operation and its HTTP route.
type OperationInfo struct {
	operation.Operation
	Path        string `json:"path"`
	RateLimited bool   `json:"rate_limited"`
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	ops := s.registry.All()
	infos := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, OperationInfo{
			Operation:   op,
			Path:        openapi.ServicePrefix + op.Endpoint,
			RateLimited: s.limiter != nil && RateLimited(op),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"operations": infos})
}
