package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bulksender/internal/models"
)

// loadTask reads and validates a campaign task file; unknown keys are rejected
func loadTask(path string) (models.CampaignTask, error) {
	var task models.CampaignTask

	f, err := os.Open(path)
	if err != nil {
		return task, fmt.Errorf("failed to open task file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&task); err != nil {
		return task, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	if err := task.Validate(); err != nil {
		return task, fmt.Errorf("invalid task file %s: %w", path, err)
	}
	return task, nil
}

// campaignIDFromPath derives a stable campaign id from the task file name,
// so rerunning the same file resumes the same campaign.
func campaignIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
