package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	nodeClassifier = "classifier"

	// ClassifyPrompt asks the vision model for a yes/no judgement.
	ClassifyPrompt = "Is this an image of an energy/electricity meter or counter display? Answer yes or no."
	affirmative    = "yes"
)

// ClassifierConfig wires the classifier.
type ClassifierConfig struct {
	Fetcher Fetcher
	Vision  Vision
	// AssetDir receives <request_id>.jpg. Defaults to os.TempDir().
	AssetDir string
	// Retry governs the download. Defaults to retry.MediaFetch.
	Retry retry.Policy
}

// Classifier downloads the first attachment and asks the vision model
// whether it shows a meter. A positive answer keeps the download for the
// extractor; any other outcome deletes it.
func Classifier(cfg ClassifierConfig) Func {
	policy := orDefault(cfg.Retry, retry.MediaFetch)
	dir := cfg.AssetDir
	if dir == "" {
		dir = os.TempDir()
	}

	return guard(nodeClassifier, classifierFallback, func(ctx context.Context, s state.State) state.Patch {
		url, ok := s.FirstAttachment()
		if !ok {
			stepLog(logx.Warn(), nodeClassifier, s).Msg("No attachment found in state")
			return classifierFallback(s)
		}

		path := assetPath(dir, s.RequestID)
		// The download survives only when it is handed to the extractor;
		// failures and panics delete it here.
		handedOff := false
		defer func() {
			if !handedOff {
				removeAsset(s, nodeClassifier, path)
			}
		}()

		isTarget, err := classify(ctx, cfg, policy, url, path)
		if err != nil {
			stepLog(logx.Error(), nodeClassifier, s).Err(err).Str("url", url).
				Msg("Image classification failed, continuing without it")
			return classifierFallback(s)
		}

		stepLog(logx.Info(), nodeClassifier, s).Bool("is_target_subject", isTarget).Msg("Image classified")
		if !isTarget {
			return classifierFallback(s)
		}
		handedOff = true
		return state.Patch{
			IsTargetSubject: state.Bool(true),
			LocalAssetPath:  state.Some(path),
		}
	})
}

func classify(ctx context.Context, cfg ClassifierConfig, policy retry.Policy, url, path string) (bool, error) {
	image, err := retry.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return cfg.Fetcher.Fetch(ctx, url)
	})
	if err != nil {
		return false, fmt.Errorf("download attachment: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create asset dir: %w", err)
	}
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return false, fmt.Errorf("save attachment: %w", err)
	}

	answer, err := cfg.Vision.Classify(ctx, image, ClassifyPrompt)
	if err != nil {
		return false, fmt.Errorf("vision classify: %w", err)
	}
	return strings.Contains(strings.ToLower(answer), affirmative), nil
}

func classifierFallback(state.State) state.Patch {
	return state.Patch{
		IsTargetSubject: state.Bool(false),
		LocalAssetPath:  state.Null[string](),
	}
}

// assetPath scopes the download to the request so concurrent requests never
// share a file.
func assetPath(dir, requestID string) string {
	return filepath.Join(dir, filepath.Base(filepath.Clean("/"+requestID))+".jpg")
}

func removeAsset(s state.State, node, path string) {
	if path == "" {
		return
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		stepLog(logx.Warn(), node, s).Err(err).Str("path", path).Msg("Failed to delete temporary asset")
		return
	}
	stepLog(logx.Debug(), node, s).Str("path", path).Msg("Deleted temporary asset")
}
