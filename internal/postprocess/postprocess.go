// Package postprocess strips model artifacts from translated digest chunks.
//
// Generative backends are asked to return only the translated numbered list,
// but they still wrap it in code fences, prepend a sentence announcing the
// translation, or leak reasoning. Clean is applied to every raw answer
// before the digest formatter reattaches URLs.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes model artifacts in four phases and returns the trimmed
// result:
//  1. Thinking / reasoning block removal
//  2. Code fence unwrapping
//  3. Instruction echo removal
//  4. Quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = unwrapCodeFence(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// RE2 has no backreferences, so every tag pair is spelled out.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opened tag with no closing tag means the model was cut off mid-thought.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// codeFenceRe matches a whole answer wrapped in ``` fences, with an optional
// info string ("```text", "```markdown").
var codeFenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\n(.*?)\n?```$")

func unwrapCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Echo patterns are anchored at the start and require a colon so a
// translated item that happens to begin with "Here is" survives.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [Vietnamese] [translated] translation:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)?(?: [\p{L}-]+)? (?:translation|translated text|text)\s*:`),
	// "[The] [Vietnamese] [translation|translated text]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:[\p{L}-]+ )?(?:translation|translated text)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the)?(?: [\p{L}-]+)? (?:translation|translated text|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeQuoteWrapping strips a matching pair of outer quotes when the whole
// answer is wrapped in them. Supported pairs:
//
//	"…"  '…'  «…»  “…”  ‘…’
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
