package api

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Timestamp parses Lemmy's published/updated fields. Older Lemmy versions
// emit naive timestamps without a zone suffix; those are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Post holds the fields the sync engine needs from a post payload.
type Post struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Published Timestamp `json:"published"`
}

// PostView is one element of a /post/list response. Raw retains the full
// payload verbatim so output files preserve whatever the server sent.
type PostView struct {
	Post Post
	Raw  json.RawMessage
}

func (pv *PostView) UnmarshalJSON(data []byte) error {
	var inner struct {
		Post Post `json:"post"`
	}
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}
	pv.Post = inner.Post
	pv.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (pv PostView) MarshalJSON() ([]byte, error) {
	return pv.Raw, nil
}

// Comment holds the fields the sync engine needs from a comment payload.
type Comment struct {
	ID     int64 `json:"id"`
	PostID int64 `json:"post_id"`
}

// CommentView is one element of a /comment/list response.
type CommentView struct {
	Comment Comment
	Raw     json.RawMessage
}

func (cv *CommentView) UnmarshalJSON(data []byte) error {
	var inner struct {
		Comment Comment `json:"comment"`
	}
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}
	cv.Comment = inner.Comment
	cv.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (cv CommentView) MarshalJSON() ([]byte, error) {
	return cv.Raw, nil
}

type postListResponse struct {
	Posts []PostView `json:"posts"`
}

type commentListResponse struct {
	Comments []CommentView `json:"comments"`
}

// Site describes the remote instance, from /site.
type Site struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"-"`
}

type siteResponse struct {
	SiteView struct {
		Site Site `json:"site"`
	} `json:"site_view"`
	Version string `json:"version"`
}

// Community describes a community, from /community.
type Community struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

type communityResponse struct {
	CommunityView struct {
		Community Community `json:"community"`
	} `json:"community_view"`
}
