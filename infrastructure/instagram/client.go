package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// PublishRequest carries one post's content to the platform. Caption and
// hashtags are composed into the final caption by the client.
type PublishRequest struct {
	AccessToken string
	Caption     string
	Hashtags    []string
	MediaURLs   []string
	PostType    string // photo, video, carousel, reel
}

type PublishResult struct {
	ExternalPostID string
	Permalink      string
}

// TokenLease is the raw result of a token exchange or refresh.
type TokenLease struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Client is the external platform contract: a publish call returning an
// external post id or a typed error, and token exchange/refresh calls.
type Client interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	ExchangeAuthCode(ctx context.Context, authCode string) (TokenLease, error)
	RefreshToken(ctx context.Context, accessToken string) (TokenLease, error)
}

// Config for the Graph API client.
type Config struct {
	BaseURL        string
	AppID          string
	AppSecret      string
	RedirectURI    string
	RequestTimeout time.Duration
	ProcessingWait time.Duration
	ProcessingPoll time.Duration
}

// GraphClient talks to the Instagram Graph API over HTTPS.
type GraphClient struct {
	cfg  Config
	http *http.Client
}

func NewGraphClient(cfg Config) *GraphClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ProcessingWait <= 0 {
		cfg.ProcessingWait = 5 * time.Minute
	}
	if cfg.ProcessingPoll <= 0 {
		cfg.ProcessingPoll = 10 * time.Second
	}
	return &GraphClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type apiResponse struct {
	ID          string `json:"id"`
	Permalink   string `json:"permalink"`
	StatusCode  string `json:"status_code"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// request performs one authenticated Graph API call and returns a decoded
// body or a typed *APIError.
func (c *GraphClient) request(ctx context.Context, method, endpoint string, params url.Values) (apiResponse, error) {
	reqURL := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), endpoint)

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
	} else {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return apiResponse{}, &APIError{Kind: KindPermanent, Message: err.Error()}
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transient by definition.
		return apiResponse{}, &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil && resp.StatusCode < 300 {
		return apiResponse{}, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "malformed platform response"}
	}

	if resp.StatusCode >= 300 || decoded.Error != nil {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("http %d", resp.StatusCode)}
		if decoded.Error != nil {
			apiErr.Code = decoded.Error.Code
			apiErr.Message = decoded.Error.Message
		}
		apiErr.Kind = classifyStatus(resp.StatusCode, apiErr.Code)
		logrus.WithField("kind", apiErr.Kind).Debugf("[INSTAGRAM] %s %s failed: %s", method, endpoint, apiErr.Message)
		return apiResponse{}, apiErr
	}

	return decoded, nil
}

// Publish uploads media and publishes it. Photos use the two-step
// container + media_publish flow; videos and reels additionally wait for
// container processing to finish.
func (c *GraphClient) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	if req.AccessToken == "" {
		return PublishResult{}, &APIError{Kind: KindAuthExpired, Message: "access token required"}
	}
	if len(req.MediaURLs) == 0 {
		return PublishResult{}, &APIError{Kind: KindPermanent, Message: "no media to publish"}
	}

	caption := req.Caption
	if len(req.Hashtags) > 0 {
		caption += "\n\n" + strings.Join(req.Hashtags, " ")
	}

	params := url.Values{}
	params.Set("access_token", req.AccessToken)
	params.Set("caption", caption)

	isVideo := false
	switch req.PostType {
	case "video":
		params.Set("video_url", req.MediaURLs[0])
		params.Set("media_type", "VIDEO")
		isVideo = true
	case "reel":
		params.Set("video_url", req.MediaURLs[0])
		params.Set("media_type", "REELS")
		isVideo = true
	default: // photo, carousel first frame
		params.Set("image_url", req.MediaURLs[0])
	}

	container, err := c.request(ctx, http.MethodPost, "me/media", params)
	if err != nil {
		return PublishResult{}, err
	}

	if isVideo {
		if err := c.waitForProcessing(ctx, container.ID, req.AccessToken); err != nil {
			return PublishResult{}, err
		}
	}

	publishParams := url.Values{}
	publishParams.Set("access_token", req.AccessToken)
	publishParams.Set("creation_id", container.ID)

	published, err := c.request(ctx, http.MethodPost, "me/media_publish", publishParams)
	if err != nil {
		return PublishResult{}, err
	}

	return PublishResult{ExternalPostID: published.ID, Permalink: published.Permalink}, nil
}

// waitForProcessing polls the media container until processing finishes.
// Expiry of the overall wait counts as a transient failure.
func (c *GraphClient) waitForProcessing(ctx context.Context, containerID, accessToken string) error {
	deadline := time.Now().Add(c.cfg.ProcessingWait)

	for time.Now().Before(deadline) {
		params := url.Values{}
		params.Set("access_token", accessToken)
		params.Set("fields", "status_code")

		status, err := c.request(ctx, http.MethodGet, containerID, params)
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR":
			return &APIError{Kind: KindPermanent, Message: "video processing failed"}
		}

		select {
		case <-ctx.Done():
			return &APIError{Kind: KindTransient, Message: "publish canceled while waiting for processing"}
		case <-time.After(c.cfg.ProcessingPoll):
		}
	}

	return &APIError{Kind: KindTransient, Message: "video processing timeout"}
}

// ExchangeAuthCode trades an authorization code for a long-lived token lease.
func (c *GraphClient) ExchangeAuthCode(ctx context.Context, authCode string) (TokenLease, error) {
	params := url.Values{}
	params.Set("client_id", c.cfg.AppID)
	params.Set("client_secret", c.cfg.AppSecret)
	params.Set("grant_type", "authorization_code")
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("code", authCode)

	resp, err := c.request(ctx, http.MethodPost, "oauth/access_token", params)
	if err != nil {
		return TokenLease{}, err
	}
	return leaseFrom(resp, 3600), nil
}

// RefreshToken exchanges the current token for a fresh long-lived one.
func (c *GraphClient) RefreshToken(ctx context.Context, accessToken string) (TokenLease, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.cfg.AppID)
	params.Set("client_secret", c.cfg.AppSecret)
	params.Set("fb_exchange_token", accessToken)

	resp, err := c.request(ctx, http.MethodGet, "oauth/access_token", params)
	if err != nil {
		return TokenLease{}, err
	}
	// Long-lived tokens default to 60 days.
	return leaseFrom(resp, 5184000), nil
}

func leaseFrom(resp apiResponse, defaultExpiresIn int64) TokenLease {
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return TokenLease{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}
}
