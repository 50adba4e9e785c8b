package piwigo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Smart album IDs. Negative by convention; they select alternate listing
// endpoints instead of a real category.
const (
	SmartAlbumSearch    int64 = -1
	SmartAlbumVisits    int64 = -2
	SmartAlbumBest      int64 = -3
	SmartAlbumRecent    int64 = -4
	SmartAlbumFavorites int64 = -5
	SmartAlbumTagged    int64 = -6
)

// Client is the HTTP implementation of Gateway against a Piwigo server's
// ws.php JSON endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Username   string
	Password   string
}

// NewClient creates a Gateway client for the given server base URL
// (e.g. "https://gallery.example.com").
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Username:   username,
		Password:   password,
	}
}

// envelope is the outer JSON structure of every ws.php response.
type envelope struct {
	Stat    string          `json:"stat"`
	Err     int             `json:"err"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// flexInt64 tolerates Piwigo's habit of returning numbers as strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse %q as integer: %w", s, err)
	}
	*f = flexInt64(v)
	return nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("method", method)

	endpoint := c.BaseURL + "/ws.php?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return &APIError{Kind: ErrKindInvalid, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transientErr(method+" request failed", err)
	}
	defer resp.Body.Close()

	return c.decode(method, resp, out)
}

func (c *Client) decode(method string, resp *http.Response, out interface{}) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{Kind: ErrKindAuth, HTTPStatus: resp.StatusCode, Message: method + " rejected"}
	case resp.StatusCode == http.StatusNotFound:
		return &APIError{Kind: ErrKindNotFound, HTTPStatus: resp.StatusCode, Message: method + " not found"}
	case resp.StatusCode >= 500:
		return &APIError{Kind: ErrKindTransient, HTTPStatus: resp.StatusCode, Message: method + " server error"}
	case resp.StatusCode != http.StatusOK:
		return &APIError{Kind: ErrKindInvalid, HTTPStatus: resp.StatusCode, Message: method + " unexpected status"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientErr(method+" body read failed", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Kind: ErrKindInvalid, HTTPStatus: resp.StatusCode, Message: method + " returned malformed JSON", Err: err}
	}
	if env.Stat != "ok" {
		kind := ErrKindInvalid
		switch env.Err {
		case 401, 403, 999:
			kind = ErrKindAuth
		case 404:
			kind = ErrKindNotFound
		}
		return &APIError{Kind: kind, HTTPStatus: resp.StatusCode, PwgCode: env.Err, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &APIError{Kind: ErrKindInvalid, HTTPStatus: resp.StatusCode, Message: method + " returned unexpected result shape", Err: err}
	}
	return nil
}

type listImagesResult struct {
	Paging struct {
		Page       flexInt64 `json:"page"`
		PerPage    flexInt64 `json:"per_page"`
		Count      flexInt64 `json:"count"`
		TotalCount flexInt64 `json:"total_count"`
	} `json:"paging"`
	Images []struct {
		ID           flexInt64 `json:"id"`
		Name         string    `json:"name"`
		File         string    `json:"file"`
		DateCreation string    `json:"date_creation"`
		DateAvail    string    `json:"date_available"`
		Filesize     flexInt64 `json:"filesize"` // KB, often absent in listings
		RatingScore  string    `json:"rating_score"`
		Hit          flexInt64 `json:"hit"`
		Derivatives  struct {
			Thumb struct {
				URL string `json:"url"`
			} `json:"thumb"`
		} `json:"derivatives"`
	} `json:"images"`
}

// ListImages implements Gateway. Smart albums route to their dedicated
// endpoints; real albums use pwg.categories.getImages.
func (c *Client) ListImages(ctx context.Context, albumID int64, query, sort string, page, perPage int) (*Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	method := "pwg.categories.getImages"
	switch albumID {
	case SmartAlbumSearch:
		method = "pwg.images.search"
		params.Set("query", query)
	case SmartAlbumFavorites:
		method = "pwg.users.favorites.getList"
	case SmartAlbumVisits:
		params.Set("recursive", "true")
		params.Set("order", "hit desc, id desc")
	case SmartAlbumBest:
		params.Set("recursive", "true")
		params.Set("order", "rating_score desc, id desc")
	case SmartAlbumRecent:
		params.Set("recursive", "true")
		params.Set("order", "date_available desc")
	case SmartAlbumTagged:
		method = "pwg.tags.getImages"
		params.Set("tag_id", query)
	default:
		params.Set("cat_id", strconv.FormatInt(albumID, 10))
		if sort != "" {
			params.Set("order", sort)
		}
	}

	var result listImagesResult
	if err := c.call(ctx, method, params, &result); err != nil {
		return nil, err
	}

	pageData := &Page{
		TotalCount: int64(result.Paging.TotalCount),
		// download rights come with the session status; listings of public
		// galleries always allow downloads
		CanDownload: true,
	}
	if pageData.TotalCount == 0 && result.Paging.Count > 0 {
		// some endpoints only report the per-page count
		pageData.TotalCount = int64(result.Paging.Count)
	}
	for _, img := range result.Images {
		data := ImageData{
			ID:           int64(img.ID),
			Title:        img.Name,
			FileName:     img.File,
			FileSize:     int64(img.Filesize) * 1024,
			Visits:       int64(img.Hit),
			ThumbnailURL: img.Derivatives.Thumb.URL,
			IsVideo:      hasExtension(img.File, "mp4", "mov", "m4v", "mpg", "avi", "webm", "ogg"),
			IsPDF:        hasExtension(img.File, "pdf"),
		}
		if t := parsePwgDate(img.DateCreation); t != nil {
			data.DateCreated = t
		}
		if t := parsePwgDate(img.DateAvail); t != nil {
			data.DatePosted = t
		}
		if img.RatingScore != "" {
			if v, err := strconv.ParseFloat(img.RatingScore, 64); err == nil {
				data.Rating = v
			}
		}
		pageData.Images = append(pageData.Images, data)
	}
	return pageData, nil
}

type listAlbumsResult struct {
	Categories []struct {
		ID            flexInt64 `json:"id"`
		Name          string    `json:"name"`
		Comment       string    `json:"comment"`
		NbImages      flexInt64 `json:"nb_images"`
		TotalNbImages flexInt64 `json:"total_nb_images"`
		IDUppercat    flexInt64 `json:"id_uppercat"`
		TnURL         string    `json:"tn_url"`
	} `json:"categories"`
}

// ListSubAlbums implements Gateway.
func (c *Client) ListSubAlbums(ctx context.Context, parentID int64) ([]AlbumSummary, error) {
	params := url.Values{}
	if parentID > 0 {
		params.Set("cat_id", strconv.FormatInt(parentID, 10))
	}

	var result listAlbumsResult
	if err := c.call(ctx, "pwg.categories.getList", params, &result); err != nil {
		return nil, err
	}

	albums := make([]AlbumSummary, 0, len(result.Categories))
	for _, cat := range result.Categories {
		summary := AlbumSummary{
			ID:            int64(cat.ID),
			Name:          cat.Name,
			Comment:       cat.Comment,
			NbImages:      int64(cat.NbImages),
			TotalNbImages: int64(cat.TotalNbImages),
			ThumbnailURL:  cat.TnURL,
		}
		if cat.IDUppercat != 0 {
			parent := int64(cat.IDUppercat)
			summary.ParentID = &parent
		}
		albums = append(albums, summary)
	}
	return albums, nil
}

type imageInfoResult struct {
	ID           flexInt64 `json:"id"`
	Name         string    `json:"name"`
	File         string    `json:"file"`
	DateCreation string    `json:"date_creation"`
	DateAvail    string    `json:"date_available"`
	Filesize     flexInt64 `json:"filesize"`
	Hit          flexInt64 `json:"hit"`
	RatingScore  string    `json:"rating_score"`
}

// GetImageInfo implements Gateway.
func (c *Client) GetImageInfo(ctx context.Context, imageID int64) (*ImageData, error) {
	params := url.Values{}
	params.Set("image_id", strconv.FormatInt(imageID, 10))

	var result imageInfoResult
	if err := c.call(ctx, "pwg.images.getInfo", params, &result); err != nil {
		return nil, err
	}

	data := &ImageData{
		ID:       int64(result.ID),
		Title:    result.Name,
		FileName: result.File,
		FileSize: int64(result.Filesize) * 1024,
		Visits:   int64(result.Hit),
		IsVideo:  hasExtension(result.File, "mp4", "mov", "m4v", "mpg", "avi", "webm", "ogg"),
		IsPDF:    hasExtension(result.File, "pdf"),
	}
	if t := parsePwgDate(result.DateCreation); t != nil {
		data.DateCreated = t
	}
	if t := parsePwgDate(result.DateAvail); t != nil {
		data.DatePosted = t
	}
	if result.RatingScore != "" {
		if v, err := strconv.ParseFloat(result.RatingScore, 64); err == nil {
			data.Rating = v
		}
	}
	return data, nil
}

// UploadChunk implements Gateway using pwg.images.upload multipart chunks.
func (c *Client) UploadChunk(ctx context.Context, chunkReq *UploadChunkRequest) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"method":   "pwg.images.upload",
		"chunk":    strconv.Itoa(chunkReq.ChunkIndex),
		"chunks":   strconv.Itoa(chunkReq.ChunkCount),
		"category": strconv.FormatInt(chunkReq.AlbumID, 10),
		"name":     chunkReq.FileName,
	}
	for key, val := range fields {
		if err := writer.WriteField(key, val); err != nil {
			return &APIError{Kind: ErrKindInvalid, Message: "failed to build multipart field", Err: err}
		}
	}
	part, err := writer.CreateFormFile("file", chunkReq.FileName)
	if err != nil {
		return &APIError{Kind: ErrKindInvalid, Message: "failed to build multipart file", Err: err}
	}
	if _, err := part.Write(chunkReq.Chunk); err != nil {
		return &APIError{Kind: ErrKindInvalid, Message: "failed to write chunk body", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &APIError{Kind: ErrKindInvalid, Message: "failed to close multipart body", Err: err}
	}

	endpoint := c.BaseURL + "/ws.php?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return &APIError{Kind: ErrKindInvalid, Message: "failed to build upload request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transientErr("upload chunk failed", err)
	}
	defer resp.Body.Close()

	return c.decode("pwg.images.upload", resp, nil)
}

type finalizeResult struct {
	ImageID   flexInt64 `json:"image_id"`
	Moderated bool      `json:"moderated"`
}

// FinalizeUpload implements Gateway using pwg.images.setInfo semantics.
func (c *Client) FinalizeUpload(ctx context.Context, finReq *FinalizeRequest) (*FinalizeResult, error) {
	params := url.Values{}
	params.Set("original_filename", finReq.FileName)
	params.Set("name", finReq.Title)
	params.Set("categories", strconv.FormatInt(finReq.AlbumID, 10))
	if finReq.DateCreated != nil {
		params.Set("date_creation", time.Unix(*finReq.DateCreated, 0).UTC().Format("2006-01-02 15:04:05"))
	}

	var result finalizeResult
	if err := c.call(ctx, "pwg.images.checkUpload", params, &result); err != nil {
		return nil, err
	}
	if result.Moderated {
		log.Printf("piwigo: upload %s queued for moderation", finReq.LocalIdentifier)
	}
	return &FinalizeResult{ImageID: int64(result.ImageID), Moderated: result.Moderated}, nil
}

func parsePwgDate(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return nil
	}
	unix := t.Unix()
	return &unix
}

func hasExtension(filename string, exts ...string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}
