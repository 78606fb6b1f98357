// Package extract turns receipt images into structured fields by calling a
// vision model endpoint and parsing its semi-structured reply. Parsing is
// staged: strict JSON first, then a permissive field-by-field scan, then
// defaults. Only a transport-level failure (no response at all) reaches the
// caller as an error; everything else degrades to defaulted fields.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"receiptvault/logger"
)

// DefaultModel is the vision model used for extraction requests.
const DefaultModel = "gpt-4-vision-preview"

const defaultBaseURL = "https://api.openai.com/v1"

const prompt = `Extract the following information from this receipt image and return ONLY a JSON object with these exact fields:
{
  "vendor": "store/restaurant name",
  "date": "YYYY-MM-DD format",
  "amount": number (total amount as decimal),
  "currency": "USD/EUR/etc",
  "category": "Food & Drink/Transport/Office/Shopping/Gas/Hotel/Other"
}

If any field cannot be determined, use reasonable defaults or "Unknown".`

// Client calls an OpenAI-compatible chat completions endpoint. With no API
// key it returns development stand-in fields instead of calling out.
type Client struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		Model:      DefaultModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends the image to the vision endpoint and returns sanitized
// fields. mediaType is the declared content type of img (e.g. image/jpeg).
func (c *Client) Extract(ctx context.Context, img []byte, mediaType string) (Fields, error) {
	if c.APIKey == "" {
		logger.Get().Info("no extraction API key configured, returning stand-in fields")
		return mockFields(img), nil
	}

	img, mediaType = PrepareImage(img, mediaType)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(img))

	body, err := json.Marshal(chatRequest{
		Model: c.model(),
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens: 300,
	})
	if err != nil {
		return Fields{}, fmt.Errorf("encode extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Fields{}, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		// transport failure is the one case that propagates
		return Fields{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Get().Warn("extraction service returned an error, substituting defaults",
			zap.Int("status", resp.StatusCode))
		return Defaults(), nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil || len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		logger.Get().Warn("unparseable extraction response, substituting defaults")
		return Defaults(), nil
	}
	return Sanitize(ParseFields(cr.Choices[0].Message.Content)), nil
}

func (c *Client) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// mockFields gives the unconfigured development path something plausible
// and deterministic for a given image.
func mockFields(img []byte) Fields {
	vendors := []string{"Coffee Shop", "Gas Station", "Grocery Store", "Restaurant"}
	categories := []string{"Food & Drink", "Gas", "Shopping", "Food & Drink"}
	i := len(img) % len(vendors)
	return Fields{
		Vendor:   vendors[i],
		Date:     time.Now().Format("2006-01-02"),
		Amount:   float64(5+len(img)%46) + 0.50,
		Currency: "USD",
		Category: categories[i],
	}
}
