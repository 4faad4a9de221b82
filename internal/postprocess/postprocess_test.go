package postprocess

import "testing"

func TestRemoveThinkingBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no thinking blocks",
			input:    "1. Xin chào\n2. Thế giới",
			expected: "1. Xin chào\n2. Thế giới",
		},
		{
			name:     "leading think block",
			input:    "<think>The user wants Vietnamese</think>\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "reasoning block between items",
			input:    "1. Xin chào<reasoning>check item two</reasoning>\n2. Thế giới",
			expected: "1. Xin chào\n2. Thế giới",
		},
		{
			name:     "multiple blocks",
			input:    "<thinking>a</thinking>1. Xin chào<reflection>b</reflection>",
			expected: "1. Xin chào",
		},
		{
			name:     "truncated block",
			input:    "1. Xin chào\n<thinking>still going",
			expected: "1. Xin chào",
		},
		{
			name:     "only truncated block",
			input:    "<reasoning>cut off",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeThinkingBlocks(tt.input)
			if result != tt.expected {
				t.Errorf("removeThinkingBlocks(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestUnwrapCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    "1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "bare fence",
			input:    "```\n1. Xin chào\n2. Thế giới\n```",
			expected: "1. Xin chào\n2. Thế giới",
		},
		{
			name:     "fence with info string",
			input:    "```text\n1. Xin chào\n```",
			expected: "1. Xin chào",
		},
		{
			name:     "surrounding whitespace",
			input:    "\n  ```markdown\n1. Xin chào\n```  \n",
			expected: "1. Xin chào",
		},
		{
			name:     "fence not wrapping whole answer",
			input:    "1. See ```code``` here",
			expected: "1. See ```code``` here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := unwrapCodeFence(tt.input)
			if result != tt.expected {
				t.Errorf("unwrapCodeFence(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveInstructionEchoes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no echo",
			input:    "1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "here's the translation",
			input:    "Here's the translation:\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "here is the Vietnamese translation",
			input:    "Here is the Vietnamese translation:\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "here's translation without article",
			input:    "Here's translation: 1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "the translation",
			input:    "The translation: 1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "vietnamese translation",
			input:    "Vietnamese translation:\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "certainly",
			input:    "Certainly, here's the translation:\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "sure with language",
			input:    "Sure! Here is the Vietnamese translation:\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "echo not at start",
			input:    "1. Here's the translation: kept",
			expected: "1. Here's the translation: kept",
		},
		{
			name:     "echo without colon",
			input:    "Here's the translation text",
			expected: "Here's the translation text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeInstructionEchoes(tt.input)
			if result != tt.expected {
				t.Errorf("removeInstructionEchoes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveQuoteWrapping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "single char", input: "a", expected: "a"},
		{name: "no quotes", input: "1. Xin chào", expected: "1. Xin chào"},
		{name: "double quotes", input: "\"1. Xin chào\"", expected: "1. Xin chào"},
		{name: "guillemets", input: "«1. Xin chào»", expected: "1. Xin chào"},
		{name: "curly double quotes", input: "“1. Xin chào”", expected: "1. Xin chào"},
		{name: "curly single quotes", input: "‘1. Xin chào’", expected: "1. Xin chào"},
		{name: "unmatched quotes", input: "\"1. Xin chào'", expected: "\"1. Xin chào'"},
		{name: "inner quotes kept", input: "1. He said \"hi\"", expected: "1. He said \"hi\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeQuoteWrapping(tt.input)
			if result != tt.expected {
				t.Errorf("removeQuoteWrapping(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "clean list",
			input:    "1. Xin chào\n2. Thế giới",
			expected: "1. Xin chào\n2. Thế giới",
		},
		{
			name:     "thinking then fenced list",
			input:    "<think>ok</think>\n```\n1. Xin chào\n2. Thế giới\n```",
			expected: "1. Xin chào\n2. Thế giới",
		},
		{
			name:     "echo then list",
			input:    "Here is the Vietnamese translation:\n\n1. Xin chào",
			expected: "1. Xin chào",
		},
		{
			name:     "only reasoning",
			input:    "<thinking>never finished",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clean(tt.input)
			if result != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
