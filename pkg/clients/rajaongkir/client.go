package rajaongkir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/wagate/pkg/errors"
)

// CostService is one courier service tier (REG, YES, OKE, ...).
type CostService struct {
	Service     string `json:"service"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"`
	ETA         string `json:"eta"`
}

// CostResult is the shipping quote for one origin/destination pair.
type CostResult struct {
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	WeightGrams int           `json:"weight_grams"`
	Courier     string        `json:"courier"`
	Services    []CostService `json:"services"`
}

// Client queries the shipping-cost collaborator.
type Client interface {
	Cost(ctx context.Context, origin, destination string, weightGrams int, courier string) (CostResult, error)
}

type client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, baseURL string) Client {
	return &client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type costResponse struct {
	Rajaongkir struct {
		Status struct {
			Code        int    `json:"code"`
			Description string `json:"description"`
		} `json:"status"`
		Results []struct {
			Code  string `json:"code"`
			Name  string `json:"name"`
			Costs []struct {
				Service     string `json:"service"`
				Description string `json:"description"`
				Cost        []struct {
					Value int64  `json:"value"`
					ETD   string `json:"etd"`
				} `json:"cost"`
			} `json:"costs"`
		} `json:"results"`
	} `json:"rajaongkir"`
}

func (c *client) Cost(ctx context.Context, origin, destination string, weightGrams int, courier string) (CostResult, error) {
	form := url.Values{}
	form.Set("origin", origin)
	form.Set("destination", destination)
	form.Set("weight", strconv.Itoa(weightGrams))
	form.Set("courier", courier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cost", strings.NewReader(form.Encode()))
	if err != nil {
		return CostResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return CostResult{}, apperrors.DependencyFailed("shipping provider unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CostResult{}, apperrors.DependencyFailed("shipping provider read failed", err)
	}

	var parsed costResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CostResult{}, apperrors.DependencyFailed("shipping provider returned malformed response", err)
	}
	if parsed.Rajaongkir.Status.Code != http.StatusOK {
		return CostResult{}, apperrors.DependencyFailed(
			fmt.Sprintf("shipping provider error: %s", parsed.Rajaongkir.Status.Description), nil)
	}
	if len(parsed.Rajaongkir.Results) == 0 {
		return CostResult{}, apperrors.DependencyFailed("shipping provider returned no results", nil)
	}

	result := CostResult{
		Origin:      origin,
		Destination: destination,
		WeightGrams: weightGrams,
		Courier:     strings.ToUpper(parsed.Rajaongkir.Results[0].Code),
	}
	for _, svc := range parsed.Rajaongkir.Results[0].Costs {
		if len(svc.Cost) == 0 {
			continue
		}
		result.Services = append(result.Services, CostService{
			Service:     svc.Service,
			Description: svc.Description,
			Cost:        svc.Cost[0].Value,
			ETA:         svc.Cost[0].ETD,
		})
	}

	return result, nil
}
