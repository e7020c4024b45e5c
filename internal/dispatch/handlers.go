package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/coderefine/engine/internal/candidate"
	"github.com/coderefine/engine/internal/fsguard"
	"github.com/coderefine/engine/internal/preflight"
	"github.com/coderefine/engine/internal/registry"
)

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args startArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	if args.Repo == "" {
		return errResult("repo is required")
	}
	if args.Halt.Max < 1 {
		return errResult("halt.max must be >= 1")
	}
	if args.Halt.Threshold < 0 || args.Halt.Threshold > 1 {
		return errResult("halt.threshold must be in [0,1]")
	}
	if args.Halt.Patience < 1 {
		return errResult("halt.patience must be >= 1")
	}

	cfg := args.toConfig(s.Defaults)
	sess := s.Registry.Create(cfg, registry.ModeCumulative)
	if args.Notes != "" {
		sess.SetZNotes(args.Notes)
	}

	resp := startResponse{
		SessionID: sess.ID,
		Config:    toConfigResponse(cfg),
	}

	if args.Preflight {
		report := preflight.Run(ctx, s.Runner, cfg)
		for _, c := range report.Checks {
			resp.Preflight = append(resp.Preflight, preflightCheckResponse{Name: c.Name, OK: c.OK, Detail: c.Detail})
		}
	}

	return resultJSON(resp)
}

func (s *Server) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args submitArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}
	if args.SID == "" {
		return errResult("sid is required")
	}

	sess := s.Registry.Get(args.SID)
	if sess == nil {
		return sessionNotFound()
	}

	if len(args.Candidate) == 0 {
		return errResult("candidate is required")
	}
	cand, err := candidate.Decode(args.Candidate)
	if err != nil {
		return errResult("invalid candidate: %v", err)
	}

	if args.Reason != "" {
		sess.SetZNotes(args.Reason)
	}

	applyResult := s.Applier.Apply(ctx, sess.Config.RepoPath, cand)

	result, err := s.Pipeline.Run(ctx, sess)
	if err != nil {
		return errResult("evaluation failed: %v", err)
	}

	if s.Audit != nil {
		if err := s.Audit.RecordEval(sess.ID, *result); err != nil {
			result.Feedback = append(result.Feedback, fmt.Sprintf("⚠️ audit log write failed: %v", err))
		}
	}

	return resultJSON(submitResponse{
		SessionID:     sess.ID,
		ModifiedPaths: applyResult.ModifiedPaths,
		ApplyErrors:   applyResult.Errors,
		Eval:          toEvalResultResponse(*result),
	})
}

func (s *Server) handleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args stateArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	sess := s.Registry.Get(args.SID)
	if sess == nil {
		return sessionNotFound()
	}

	resp := stateResponse{
		SessionID:       sess.ID,
		Step:            sess.Step(),
		EMAScore:        sess.EMAScore(),
		BestScore:       sess.BestScore(),
		NoImproveStreak: sess.NoImproveStreak(),
		ZNotes:          sess.ZNotes(),
	}
	if last := sess.Last(); last != nil {
		r := toEvalResultResponse(*last)
		resp.Last = &r
	}
	return resultJSON(resp)
}

func (s *Server) handleHalt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args stateArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	sess := s.Registry.Get(args.SID)
	if sess == nil {
		return sessionNotFound()
	}

	last := sess.Last()
	if last == nil {
		return resultJSON(haltResponse{ShouldHalt: false, Reasons: []string{"No evaluations yet"}})
	}
	return resultJSON(haltResponse{ShouldHalt: last.ShouldHalt, Reasons: last.Reasons})
}

func (s *Server) handleEnd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args endArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	if !s.Registry.Delete(args.SID) {
		return sessionNotFound()
	}
	return resultJSON(endResponse{OK: true, Message: "session ended"})
}

func (s *Server) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args readArgs
	if err := req.BindArguments(&args); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	sess := s.Registry.Get(args.SID)
	if sess == nil {
		return sessionNotFound()
	}

	resp := readResponse{SessionID: sess.ID}
	for _, p := range args.Paths {
		resp.Files = append(resp.Files, readOneFile(sess.Config.RepoPath, p))
	}
	return resultJSON(resp)
}

func readOneFile(repoPath, rel string) fileReadResponse {
	abs, err := fsguard.Resolve(repoPath, rel)
	if err != nil {
		return fileReadResponse{Path: rel, Error: err.Error()}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fileReadResponse{Path: rel, Error: fmt.Sprintf("stat: %v", err)}
	}
	if info.IsDir() {
		return fileReadResponse{Path: rel, Error: "path is a directory"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return fileReadResponse{Path: rel, Error: fmt.Sprintf("read: %v", err)}
	}

	content := string(data)
	return fileReadResponse{
		Path:         rel,
		Content:      content,
		LineCount:    strings.Count(content, "\n") + 1,
		SizeBytes:    info.Size(),
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
	}
}
