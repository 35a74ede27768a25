package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/motorguard/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat ID is parsed before the bot token is checked, so no network call happens
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatAlert_HighTemperature(t *testing.T) {
	alert := models.Alert{
		ID:          "a1",
		Kind:        models.AlertHighTemperature,
		Temperature: 65.3,
		Threshold:   60,
		Message:     "Temperature 65.3°C exceeded threshold 60.0°C",
		DetectedAt:  time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC),
	}
	got := formatAlert(alert)

	for _, want := range []string{
		"*High Motor Temperature*",
		"2024\\-01\\-02 09:15:00 UTC",
		"*65\\.3°C*",
		"Threshold: 60\\.0°C",
		"exceeded threshold 60\\.0°C",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatAlert missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Failure probability") {
		t.Error("temperature alert should not mention a probability")
	}
}

func TestFormatAlert_FailureRisk(t *testing.T) {
	p := 0.875
	alert := models.Alert{
		ID:          "a2",
		Kind:        models.AlertFailureRisk,
		Temperature: 48,
		Probability: &p,
		Threshold:   0.7,
		DetectedAt:  time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC),
	}
	got := formatAlert(alert)

	for _, want := range []string{
		"*Motor Failure Risk*",
		"*87\\.5%*",
		"\\(threshold 70\\.0%\\)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatAlert missing %q in:\n%s", want, got)
		}
	}
}
