// Package functions adapts the clustering and note-improvement services to
// API Gateway HTTP events, so they can run as standalone Lambdas behind the
// proxy clients.
package functions

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"notemesh/application/ports"
	pkgerrors "notemesh/pkg/errors"
	"notemesh/pkg/observability"
	"notemesh/pkg/utils"
)

// Function names, also used as the proxy path segments
const (
	ClusterNodes = "cluster-nodes"
	ImproveNote  = "improve-note"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Content-Type":                 "application/json",
}

// Options holds what every function shares
type Options struct {
	// APIKey, when set, must be presented as a bearer token
	APIKey  string
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

type invokeFunc func(ctx context.Context, body []byte) (any, error)

// Function serves one serverless endpoint
type Function struct {
	name   string
	opts   Options
	invoke invokeFunc
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewClusterFunction serves the cluster-nodes contract
func NewClusterFunction(clusterer ports.ClusteringProvider, opts Options) *Function {
	f := &Function{name: ClusterNodes, opts: opts}
	f.invoke = func(ctx context.Context, body []byte) (any, error) {
		var req ports.ClusterRequest
		if err := decode(body, &req); err != nil {
			return nil, err
		}
		if len(req.Nodes) == 0 {
			return nil, pkgerrors.NewValidationError("No nodes provided")
		}
		if err := utils.ValidateStruct(req); err != nil {
			return nil, err
		}
		if opts.Tracer != nil {
			opts.Tracer.AddMetadata(ctx, "nodes", len(req.Nodes))
			if req.UserID != "" {
				opts.Tracer.AddAnnotation(ctx, "user_id", req.UserID)
			}
		}
		return clusterer.ProposeClusters(ctx, req)
	}
	return f
}

// NewImproveFunction serves the improve-note contract
func NewImproveFunction(improver ports.NoteImprover, opts Options) *Function {
	f := &Function{name: ImproveNote, opts: opts}
	f.invoke = func(ctx context.Context, body []byte) (any, error) {
		var req ports.ImproveRequest
		if err := decode(body, &req); err != nil {
			return nil, err
		}
		improved, err := improver.ImproveNote(ctx, req.Content)
		if err != nil {
			return nil, err
		}
		return ports.ImproveResponse{ImprovedContent: improved}, nil
	}
	return f
}

// Name returns the function name
func (f *Function) Name() string { return f.name }

// Handle processes one API Gateway HTTP API event
func (f *Function) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case http.MethodOptions:
		return respond(http.StatusOK, nil), nil
	case http.MethodPost:
	default:
		return respond(http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"}), nil
	}

	if !f.authorized(req.Headers) {
		return respond(http.StatusUnauthorized, errorBody{Error: "Unauthorized"}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return respond(http.StatusBadRequest, errorBody{Error: "Invalid request body"}), nil
		}
		body = decoded
	}

	start := time.Now()
	var result any
	run := func(ctx context.Context) error {
		var err error
		result, err = f.invoke(ctx, body)
		return err
	}
	var err error
	if f.opts.Tracer != nil {
		err = f.opts.Tracer.TraceFunction(ctx, "invoke", run)
	} else {
		err = run(ctx)
	}

	outcome := "success"
	if err != nil {
		outcome = string(pkgerrors.TypeOf(err))
	}
	f.opts.Metrics.RecordInvocation(ctx, f.name, outcome, time.Since(start))

	if err != nil {
		status, eb := f.errorResponse(req.RequestContext.RequestID, err)
		return respond(status, eb), nil
	}
	return respond(http.StatusOK, result), nil
}

func (f *Function) authorized(headers map[string]string) bool {
	if f.opts.APIKey == "" {
		return true
	}
	header := headers["authorization"]
	if header == "" {
		header = headers["Authorization"]
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(f.opts.APIKey)) == 1
}

func (f *Function) errorResponse(requestID string, err error) (int, errorBody) {
	appErr := pkgerrors.GetAppError(err)
	if appErr == nil || appErr.Type == pkgerrors.ErrorTypeInternal {
		f.logger().Error("Function failed",
			zap.String("function", f.name),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return http.StatusInternalServerError, errorBody{Error: "An internal error occurred"}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	f.logger().Warn("Function error",
		zap.String("function", f.name),
		zap.String("request_id", requestID),
		zap.String("error_type", string(appErr.Type)),
		zap.Int("status", status),
		zap.Error(err),
	)
	return status, errorBody{Error: appErr.Message, Code: appErr.Code}
}

func (f *Function) logger() *zap.Logger {
	if f.opts.Logger == nil {
		return zap.NewNop()
	}
	return f.opts.Logger
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return pkgerrors.NewValidationError("Invalid request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return pkgerrors.NewValidationError("Invalid request body").WithCause(err)
	}
	return nil
}

func respond(status int, body any) events.APIGatewayV2HTTPResponse {
	headers := make(map[string]string, len(corsHeaders))
	for k, v := range corsHeaders {
		headers[k] = v
	}
	resp := events.APIGatewayV2HTTPResponse{StatusCode: status, Headers: headers}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			resp.StatusCode = http.StatusInternalServerError
			payload = []byte(`{"error":"An internal error occurred"}`)
		}
		resp.Body = string(payload)
	}
	return resp
}
