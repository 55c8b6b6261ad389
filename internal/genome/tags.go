package genome

import (
	"context"
	_ "embed"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// maxTagCount is the largest table a uint16 gene can index.
const maxTagCount = 1 << 16

// maxTagListBytes caps remote tag list downloads.
const maxTagListBytes = 4 << 20

//go:embed tags_default.txt
var defaultTagList string

// DefaultTags returns the bundled tag table used when no URL is supplied.
func DefaultTags() []string {
	return parseTagList(defaultTagList)
}

// FetchTags downloads a newline-delimited tag list. The table is loaded once
// at session start; failures here abort session creation.
func FetchTags(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid tag list URL %s", url)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch tag list")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tag list fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTagListBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read tag list")
	}

	tags := parseTagList(string(body))
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// ValidateTags checks that a tag table is usable as a gene value domain.
func ValidateTags(tags []string) error {
	if len(tags) == 0 {
		return errors.New("tag table is empty")
	}
	if len(tags) > maxTagCount {
		return errors.Errorf("tag table has %d entries, more than a gene can index", len(tags))
	}
	return nil
}

// parseTagList splits newline-delimited text into trimmed non-empty tags.
func parseTagList(text string) []string {
	var tags []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tags = append(tags, line)
		}
	}
	return tags
}
