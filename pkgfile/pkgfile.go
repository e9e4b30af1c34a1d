// Package pkgfile parses the two package-file formats named in §6:
// JSON (a direct TopicPackage serialization) and a "pretty" plain-text
// layout meant for manual authoring.
package pkgfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"jeopardybot/model"
)

// Parse dispatches on filename extension: ".json" is parsed as a
// direct TopicPackage serialization, anything else as the pretty
// text format.
func Parse(filename string, data []byte) (*model.TopicPackage, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".json") {
		return parseJSON(data)
	}
	return parsePretty(string(data))
}

func parseJSON(data []byte) (*model.TopicPackage, error) {
	var pkg model.TopicPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("pkgfile: invalid json package: %w", err)
	}
	if err := validate(&pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// parsePretty implements §6's text format: paragraphs separated by a
// blank line, first paragraph title, second description, each
// following paragraph one topic ("Тема <name>" then five
// "<cost>. <prompt>" / "Ответ: <answer>" pairs, costs 10..50). Title,
// description, each prompt, and each answer may themselves span
// multiple lines; a topic paragraph that doesn't parse cleanly is
// dropped rather than failing the whole upload, matching the
// original's `parse_pretty` (src/parser.rs): it only rejects the
// package outright once every topic has been dropped this way.
func parsePretty(text string) (*model.TopicPackage, error) {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) < 3 {
		return nil, fmt.Errorf("pkgfile: need title, description and at least one topic paragraph")
	}

	pkg := &model.TopicPackage{
		Title:       strings.TrimSpace(strings.Join(paragraphs[0], "\n")),
		Description: strings.TrimSpace(strings.Join(paragraphs[1], "\n")),
	}

	for _, para := range paragraphs[2:] {
		topic, ok := parseTopicParagraph(para)
		if ok {
			pkg.Topics = append(pkg.Topics, *topic)
		}
	}

	if err := validate(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func splitParagraphs(text string) [][]string {
	var paragraphs [][]string
	var current []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

const answerMarker = "Ответ: "

// getPart scans lines for a marker-delimited, possibly multi-line
// field: the first line starting with from begins the field (its text
// after the prefix is the field's first line), and every following
// line is appended until one starts with to (exclusive) or the lines
// run out. Grounded on the original's `get_part` (src/parser.rs),
// including its leniency: ok is false only when from is never found,
// not when to is missing (the field then simply runs to the end of
// the paragraph, which is exactly how the fifth question's answer,
// which has no terminating marker, is meant to be read).
func getPart(lines []string, from, to string) (value string, rest []string, ok bool) {
	var parts []string
	on := false
	for i, s := range lines {
		if on {
			if strings.HasPrefix(s, to) {
				return strings.Join(parts, "\n"), lines[i:], true
			}
			parts = append(parts, s)
			continue
		}
		if strings.HasPrefix(s, from) {
			on = true
			parts = append(parts, strings.TrimPrefix(s, from))
		}
	}
	if !on {
		return "", nil, false
	}
	return strings.Join(parts, "\n"), nil, true
}

func parseTopicParagraph(lines []string) (*model.Topic, bool) {
	firstMarker := fmt.Sprintf("%d. ", model.QuestionCosts[0])
	name, rest, ok := getPart(lines, "Тема ", firstMarker)
	if !ok {
		return nil, false
	}

	topic := &model.Topic{Name: strings.TrimSpace(name)}
	for i := 0; i < 5; i++ {
		qMarker := fmt.Sprintf("%d. ", model.QuestionCosts[i])
		var nextMarker string
		if i+1 < len(model.QuestionCosts) {
			nextMarker = fmt.Sprintf("%d. ", model.QuestionCosts[i+1])
		} else {
			nextMarker = fmt.Sprintf("%d. ", model.QuestionCosts[i]+10) // never occurs; answer runs to paragraph end
		}

		prompt, afterQ, ok := getPart(rest, qMarker, answerMarker)
		if !ok {
			return nil, false
		}
		answer, afterA, ok := getPart(afterQ, answerMarker, nextMarker)
		if !ok {
			return nil, false
		}
		rest = afterA

		topic.Questions[i] = model.Question{
			Cost:            model.QuestionCosts[i],
			Prompt:          strings.TrimSpace(prompt),
			AcceptedAnswers: []string{strings.TrimSpace(answer)},
		}
	}
	return topic, true
}

func validate(pkg *model.TopicPackage) error {
	if pkg.Title == "" {
		return fmt.Errorf("pkgfile: package title is empty")
	}
	if len(pkg.Topics) == 0 {
		return fmt.Errorf("pkgfile: package has no topics")
	}
	for i, topic := range pkg.Topics {
		if topic.Name == "" {
			return fmt.Errorf("pkgfile: topic %d has no name", i)
		}
		for j, q := range topic.Questions {
			if q.Cost != model.QuestionCosts[j] {
				return fmt.Errorf("pkgfile: topic %d question %d: cost must be %d, got %d", i, j, model.QuestionCosts[j], q.Cost)
			}
			if q.Prompt == "" {
				return fmt.Errorf("pkgfile: topic %d question %d: empty prompt", i, j)
			}
			if len(q.AcceptedAnswers) == 0 {
				return fmt.Errorf("pkgfile: topic %d question %d: no accepted answers", i, j)
			}
		}
	}
	return nil
}
