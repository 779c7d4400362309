// Package controller exposes the execution engine over HTTP.
package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
	"coderunner/pkg/utils/logger"
	"coderunner/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Evaluator is the part of the execution engine the handlers use.
type Evaluator interface {
	Evaluate(ctx context.Context, sub model.Submission, tests []model.TestCase, mode model.Mode) (result.EvaluationResult, error)
	Languages() []profile.LanguageSpec
	BackendName() string
	MaxLimits() model.Limits
}

// JudgeController handles code run requests.
type JudgeController struct {
	svc     Evaluator
	started time.Time
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc Evaluator) *JudgeController {
	return &JudgeController{svc: svc, started: time.Now()}
}

// Register mounts every route on r.
func (h *JudgeController) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/languages", h.Languages)
	r.POST("/run", h.Run)
	r.POST("/submit", h.Submit)
	r.POST("/run-all", h.RunAll)
	r.POST("/execute", h.Execute)
}

// Health reports liveness.
func (h *JudgeController) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    time.Since(h.started).Seconds(),
		"backend":   h.svc.BackendName(),
	})
}

// Languages lists the languages the active backend can run.
func (h *JudgeController) Languages(c *gin.Context) {
	langs := h.svc.Languages()
	out := make([]LanguageDTO, 0, len(langs))
	for _, lang := range langs {
		out = append(out, LanguageDTO{ID: lang.ID, Name: lang.Name, Version: lang.Version, Compiled: lang.CompileEnabled})
	}
	response.Success(c, gin.H{"languages": out})
}

// Run judges the sample tests and stops at the first failure.
func (h *JudgeController) Run(c *gin.Context) {
	h.judge(c, false)
}

// Submit judges samples plus hidden tests and stops at the first failure.
func (h *JudgeController) Submit(c *gin.Context) {
	h.judge(c, true)
}

func (h *JudgeController) judge(c *gin.Context, includeHidden bool) {
	req, ok := h.bindRunRequest(c)
	if !ok {
		return
	}
	tests := req.Problem.testCases(includeHidden)
	res, err := h.svc.Evaluate(c.Request.Context(), h.submission(req.Code, req.Language, req.Problem.limits()), tests, model.ModeStopOnFirstFailure)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toJudgeResponse(res))
}

// RunAll counts passing tests over samples plus hidden tests.
func (h *JudgeController) RunAll(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if req.Code == "" || req.Language == "" || req.Problem == nil {
		response.BadRequest(c, "Missing required fields: code, language, or problem")
		return
	}
	if msg := h.checkLimits(req.Problem.TimeLimit, req.Problem.MemoryLimit); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	tests := req.Problem.testCases(true)
	res, err := h.svc.Evaluate(c.Request.Context(), h.submission(req.Code, req.Language, req.Problem.limits()), tests, model.ModeCount)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Kind != result.KindCounted {
		// unsupported language
		res = result.NewCounted(0, len(tests))
	}
	response.Success(c, CountResponse{Success: true, Passed: res.Passed, Total: res.Total})
}

// Execute runs each input and returns the raw outputs.
func (h *JudgeController) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	inputs := req.Inputs
	if inputs == nil {
		inputs, _ = req.Problem.inputs()
	}
	if req.Code == "" || req.Language == "" || inputs == nil {
		response.BadRequest(c, "Missing required fields: code, language, and inputs (array) or problem.testCases")
		return
	}
	if msg := h.checkLimits(req.TimeLimit, req.MemoryLimit); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	tests := make([]model.TestCase, len(inputs))
	for i, in := range inputs {
		tests[i] = model.TestCase{Input: in}
	}
	logger.Info(c.Request.Context(), "execute", zap.String("language", req.Language), zap.Int("inputs", len(inputs)))

	res, err := h.svc.Evaluate(c.Request.Context(), h.submission(req.Code, req.Language, limits(req.TimeLimit, req.MemoryLimit)), tests, model.ModeCollect)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ExecuteResponse{Outputs: toOutputs(res, len(inputs))})
}

func (h *JudgeController) bindRunRequest(c *gin.Context) (RunRequest, bool) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Code) == "" {
		response.BadRequest(c, `Missing or invalid "code" field (must be a non-empty string)`)
		return req, false
	}
	if !h.supported(req.Language) {
		response.BadRequest(c, fmt.Sprintf("Invalid or unsupported language. Supported: %s", strings.Join(h.languageIDs(), ", ")))
		return req, false
	}
	if req.Problem == nil {
		response.BadRequest(c, `Missing or invalid "problem" field (must be an object)`)
		return req, false
	}
	if msg := h.checkLimits(req.Problem.TimeLimit, req.Problem.MemoryLimit); msg != "" {
		response.BadRequest(c, msg)
		return req, false
	}
	logger.Info(c.Request.Context(), "judge request",
		zap.String("language", req.Language),
		zap.String("problem_id", req.Problem.ID),
		zap.Int("code_bytes", len(req.Code)),
	)
	return req, true
}

// checkLimits returns why the requested limits exceed the configured
// maximum, or "" when they fit. Values are compared before conversion so a
// huge timeLimit cannot overflow a time.Duration.
func (h *JudgeController) checkLimits(timeLimitSeconds float64, memoryLimitKB int64) string {
	max := h.svc.MaxLimits()
	if max.TimeLimit > 0 && timeLimitSeconds > max.TimeLimit.Seconds() {
		return fmt.Sprintf("timeLimit must not exceed %g seconds", max.TimeLimit.Seconds())
	}
	if max.MemoryLimitKB > 0 && memoryLimitKB > max.MemoryLimitKB {
		return fmt.Sprintf("memoryLimit must not exceed %d KB", max.MemoryLimitKB)
	}
	return ""
}

func (h *JudgeController) submission(code, language string, limits model.Limits) model.Submission {
	return model.Submission{Language: normalizeLanguage(language), Source: code, Limits: limits}
}

func (h *JudgeController) supported(language string) bool {
	id := normalizeLanguage(language)
	if id == "" {
		return false
	}
	for _, known := range h.languageIDs() {
		if known == id {
			return true
		}
	}
	return false
}

func (h *JudgeController) languageIDs() []string {
	langs := h.svc.Languages()
	ids := make([]string, 0, len(langs))
	for _, lang := range langs {
		ids = append(ids, lang.ID)
	}
	return ids
}

func toJudgeResponse(res result.EvaluationResult) any {
	if res.IsAccepted() {
		return AcceptedResponse{Message: res.Message}
	}
	out := JudgeResponse{
		IsError:   true,
		ErrorType: res.Verdict.DisplayName(),
		Message:   res.Message,
	}
	if out.Message == "" {
		out.Message = out.ErrorType
	}
	if res.Failure != nil {
		out.Result = &JudgeResultDTO{Input: res.Failure.Input, Expected: res.Failure.Expected, Output: res.Failure.Actual}
	}
	return out
}

func toOutputs(res result.EvaluationResult, n int) []string {
	outputs := make([]string, n)
	if res.Kind != result.KindRawOutputs {
		for i := range outputs {
			outputs[i] = "Error: " + res.Message
		}
		return outputs
	}
	for i, o := range res.Outputs {
		if o.Error != "" {
			outputs[i] = "Error: " + o.Error
			continue
		}
		outputs[i] = o.Output
	}
	return outputs
}
