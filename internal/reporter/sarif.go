package reporter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// SARIFReporter outputs newly observed vulnerabilities in SARIF format so
// CI code-scanning gates can consume a run
type SARIFReporter struct{}

// SARIF structures
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription sarifText       `json:"shortDescription"`
	FullDescription  sarifText       `json:"fullDescription"`
	Help             sarifText       `json:"help"`
	HelpURI          string          `json:"helpUri"`
	DefaultConfig    sarifRuleConfig `json:"defaultConfiguration"`
	Properties       sarifProperties `json:"properties"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifProperties struct {
	Tags             []string `json:"tags"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             sarifText         `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// Version is reported as the SARIF tool version
var Version = "dev"

// Report generates SARIF output for the newly observed records of a run
func (r *SARIFReporter) Report(summary *models.RunSummary) ([]byte, error) {
	rules := make([]sarifRule, 0, len(summary.New))
	results := make([]sarifResult, 0, len(summary.New))

	for i, v := range summary.New {
		rules = append(rules, buildRule(v))
		results = append(results, sarifResult{
			RuleID:    v.ID,
			RuleIndex: i,
			Level:     sarifLevel(v.Score),
			Message: sarifText{
				Text: fmt.Sprintf("Newly published %s vulnerability %s (CVSS %.1f)", strings.ToLower(v.Rating()), v.ID, v.Score),
			},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifact{URI: detailURL(v.ID)},
				},
			}},
			PartialFingerprints: map[string]string{
				"primaryLocationLineHash": fmt.Sprintf("%s:%s", v.Source, v.ID),
			},
		})
	}

	report := sarifReport{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "cve-watch",
					Version:        Version,
					InformationURI: "https://github.com/ethanolivertroy/cve-watch",
					Rules:          rules,
				},
			},
			Results: results,
		}},
	}

	return json.MarshalIndent(report, "", "  ")
}

func buildRule(v models.Vulnerability) sarifRule {
	tags := []string{"security", "vulnerability", strings.ToLower(v.Source)}
	if v.Family != "" {
		tags = append(tags, v.Family)
	}

	help := fmt.Sprintf("Attack vector: %s\n\nReferences:\n%s", v.Vector, strings.Join(v.References, "\n"))

	return sarifRule{
		ID:               v.ID,
		Name:             v.ID,
		ShortDescription: sarifText{Text: fmt.Sprintf("%s: %s", v.ID, v.Rating())},
		FullDescription:  sarifText{Text: v.Description},
		Help:             sarifText{Text: help},
		HelpURI:          detailURL(v.ID),
		DefaultConfig:    sarifRuleConfig{Level: sarifLevel(v.Score)},
		Properties: sarifProperties{
			Tags:             tags,
			SecuritySeverity: fmt.Sprintf("%.1f", v.Score),
		},
	}
}

func sarifLevel(score float64) string {
	if score >= 9.0 {
		return "error"
	}
	return "warning"
}

func detailURL(id string) string {
	return fmt.Sprintf("https://nvd.nist.gov/vuln/detail/%s", id)
}
