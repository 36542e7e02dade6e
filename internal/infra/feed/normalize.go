package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// msEpochThreshold separates millisecond from second epochs: any value
// above it cannot be a plausible second timestamp.
const msEpochThreshold = int64(1e10)

// rawArticle is the loosely-typed shape JSON endpoints return. Fields the
// service renders inconsistently (numeric vs string ids, second vs
// millisecond vs ISO-8601 timestamps) are kept raw and resolved during
// normalization.
type rawArticle struct {
	ID             json.RawMessage `json:"id"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Link           string          `json:"link"`
	GUID           string          `json:"guid"`
	MPName         string          `json:"mp_name"`
	Author         string          `json:"author"`
	MPID           json.RawMessage `json:"mp_id"`
	PublishTime    json.RawMessage `json:"publish_time"`
	Published      json.RawMessage `json:"published"`
	Description    string          `json:"description"`
	ContentSnippet string          `json:"content_snippet"`
	Priority       int             `json:"priority"`
}

func normalizeRawArticle(raw *rawArticle) (Article, error) {
	url := raw.URL
	if url == "" {
		url = raw.Link
	}

	id := rawString(raw.ID)
	if id == "" {
		id = synthesizeID(raw.GUID, url)
	}
	if id == "" {
		return Article{}, fmt.Errorf("entry has no id, guid or link")
	}

	mpName := raw.MPName
	if mpName == "" {
		mpName = raw.Author
	}

	publishRaw := raw.PublishTime
	if len(publishRaw) == 0 {
		publishRaw = raw.Published
	}

	return Article{
		ID:             id,
		Title:          raw.Title,
		URL:            url,
		MPName:         mpName,
		MPID:           rawString(raw.MPID),
		PublishTime:    normalizePublishTime(rawString(publishRaw), time.Now()),
		Description:    raw.Description,
		ContentSnippet: raw.ContentSnippet,
		Priority:       raw.Priority,
	}, nil
}

func normalizeFeedItem(it *gofeed.Item) (Article, error) {
	id := synthesizeID(it.GUID, it.Link)
	if id == "" {
		return Article{}, fmt.Errorf("entry has no guid or link")
	}

	var mpName string
	if it.Author != nil {
		mpName = it.Author.Name
	}

	publishTime := time.Now().Unix()
	switch {
	case it.PublishedParsed != nil:
		publishTime = it.PublishedParsed.Unix()
	case it.UpdatedParsed != nil:
		publishTime = it.UpdatedParsed.Unix()
	case it.Published != "":
		publishTime = normalizePublishTime(it.Published, time.Now())
	}

	// Content is preferred; Description fills in for RSS items without it.
	snippet := it.Content
	if snippet == "" {
		snippet = it.Description
	}

	return Article{
		ID:             id,
		Title:          it.Title,
		URL:            it.Link,
		MPName:         mpName,
		PublishTime:    publishTime,
		Description:    it.Description,
		ContentSnippet: snippet,
	}, nil
}

// synthesizeID derives a stable id for entries that carry none: the guid
// when present, otherwise a hash of the link.
func synthesizeID(guid, link string) string {
	if guid != "" {
		return guid
	}
	if link == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:16])
}

// normalizePublishTime resolves a raw timestamp to Unix seconds. Integers
// above the millisecond threshold are scaled down; strings are tried as
// integers first, then as loose date strings. Anything unparseable
// defaults to now.
func normalizePublishTime(raw string, now time.Time) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Unix()
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > msEpochThreshold {
			return n / 1000
		}
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		n := int64(f)
		if n > msEpochThreshold {
			return n / 1000
		}
		return n
	}

	if t, err := dateparse.ParseAny(raw); err == nil {
		return t.Unix()
	}
	return now.Unix()
}

// rawString unwraps a JSON scalar to its string form: quoted strings lose
// their quotes, numbers keep their digits.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
