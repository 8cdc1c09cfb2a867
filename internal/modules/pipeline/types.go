package pipeline

import (
	"errors"
	"fmt"
)

type RunRequest struct {
	// ImageBase64 is the product image, raw base64 or a data URI.
	ImageBase64 string `json:"image_base64"`
}

type ProductAnalysis struct {
	ProductName string   `json:"product_name"`
	Category    string   `json:"category"`
	Colors      []string `json:"colors"`
	Materials   []string `json:"materials"`
	KeyFeatures []string `json:"key_features"`
	Background  string   `json:"background"`
}

func (a *ProductAnalysis) Verify() error {
	if a.ProductName == "" {
		return errors.New("analysis: product_name is empty")
	}
	return nil
}

type Script struct {
	Title        string   `json:"title"`
	Hook         string   `json:"hook"`
	Beats        []string `json:"beats"`
	CallToAction string   `json:"call_to_action"`
}

func (s *Script) Verify() error {
	if len(s.Beats) == 0 {
		return errors.New("script: no beats")
	}
	return nil
}

type Shot struct {
	Framing  string `json:"framing"`
	Movement string `json:"movement"`
	Focus    string `json:"focus"`
	Duration int    `json:"duration"`
}

type Composition struct {
	Background string `json:"background"`
	Style      string `json:"style"`
	Shots      []Shot `json:"shots"`
}

func (c *Composition) Verify() error {
	if len(c.Shots) == 0 {
		return errors.New("composition: no shots")
	}
	for i, s := range c.Shots {
		if s.Focus == "" && s.Framing == "" {
			return fmt.Errorf("composition: shot %d has neither framing nor focus", i+1)
		}
	}
	return nil
}

type ShotResult struct {
	Index          int    `json:"index"`
	Prompt         string `json:"prompt"`
	Status         string `json:"status"`
	TaskNo         string `json:"task_no,omitempty"`
	ProviderTaskID string `json:"provider_task_id,omitempty"`
	ExternalURL    string `json:"external_url,omitempty"`
	InternalKey    string `json:"internal_key,omitempty"`
	InternalURL    string `json:"internal_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// URL prefers the mirrored copy.
func (r ShotResult) URL() string {
	if r.InternalURL != "" {
		return r.InternalURL
	}
	return r.ExternalURL
}

type StageOutput struct {
	Output      any    `json:"output"`
	ArtifactURL string `json:"artifact_url,omitempty"`
}

type RunResult struct {
	RunID       string          `json:"run_id"`
	Analysis    ProductAnalysis `json:"analysis"`
	Script      Script          `json:"script"`
	Composition Composition     `json:"composition"`
	Shots       []ShotResult    `json:"shots"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
}
