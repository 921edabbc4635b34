// Package jupyter drives notebooks on a Jupyter kernel gateway.
//
// A session starts a kernel with POST /api/kernels, talks messaging protocol
// v5.3 over the /api/kernels/{id}/channels websocket, and deletes the kernel on
// Close. An execution completes when both its execute_reply and the kernel's
// return to idle have been seen.
package jupyter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

// Name is the backend name used by kernel.Selector.
const Name = "jupyter"

// Config locates the gateway.
type Config struct {
	GatewayURL   string
	Token        string
	DefaultName  string
	StartTimeout time.Duration
}

// Kernel starts sessions on a gateway.
type Kernel struct {
	config  Config
	rest    *resty.Client
	wsBase  string
	dialer  *websocket.Dialer
	policy  *bluemonday.Policy
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// New creates a gateway kernel.
func New(config Config, logger *zap.Logger) (*Kernel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(config.GatewayURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	wsBase := *base
	switch base.Scheme {
	case "http":
		wsBase.Scheme = "ws"
	case "https":
		wsBase.Scheme = "wss"
	default:
		return nil, fmt.Errorf("gateway url %q must be http or https", config.GatewayURL)
	}
	if config.DefaultName == "" {
		config.DefaultName = "python3"
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = time.Minute
	}

	rest := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(config.StartTimeout).
		SetLogger(logging.NewPrintf(logger)).
		SetHeader("Content-Type", "application/json")
	rest.JSONMarshal = sonic.Marshal
	rest.JSONUnmarshal = sonic.Unmarshal
	if config.Token != "" {
		rest.SetHeader("Authorization", "token "+config.Token)
	}

	return &Kernel{
		config: config,
		rest:   rest,
		wsBase: wsBase.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		policy: bluemonday.UGCPolicy(),
		breaker: resilience.New("jupyter-gateway", resilience.Settings{
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger: logger,
	}, nil
}

// Start launches a kernel named by the document kernelspec and connects to it.
func (k *Kernel) Start(ctx context.Context, doc *notebook.Document) (kernel.Session, error) {
	name := doc.Kernelspec.Name
	if name == "" {
		name = k.config.DefaultName
	}

	model, err := resilience.Execute(k.breaker, func() (*kernelModel, error) {
		var model kernelModel
		resp, err := k.rest.R().
			SetContext(ctx).
			SetBody(map[string]string{"name": name}).
			SetResult(&model).
			Post("/api/kernels")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		}
		if model.ID == "" {
			return nil, fmt.Errorf("gateway returned no kernel id")
		}
		return &model, nil
	})
	if err != nil {
		return nil, fmt.Errorf("start kernel %s: %w", name, err)
	}

	sessionID := uuid.NewString()
	header := http.Header{}
	if k.config.Token != "" {
		header.Set("Authorization", "token "+k.config.Token)
	}
	wsURL := k.wsBase + "/api/kernels/" + url.PathEscape(model.ID) + "/channels?session_id=" + sessionID
	conn, _, err := k.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		k.deleteKernel(model.ID)
		return nil, fmt.Errorf("connect kernel %s: %w", model.ID, err)
	}

	k.logger.Info("Started kernel",
		zap.String("kernel_id", model.ID),
		zap.String("kernel_name", model.Name),
	)
	return &session{
		kernel:    k,
		kernelID:  model.ID,
		sessionID: sessionID,
		conn:      conn,
	}, nil
}

// interrupt asks the gateway to interrupt a running execution.
func (k *Kernel) interrupt(kernelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := k.rest.R().SetContext(ctx).Post("/api/kernels/" + url.PathEscape(kernelID) + "/interrupt")
	if err != nil || resp.IsError() {
		k.logger.Warn("Failed to interrupt kernel", zap.String("kernel_id", kernelID), zap.Error(err))
	}
}

func (k *Kernel) deleteKernel(kernelID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := k.rest.R().SetContext(ctx).Delete("/api/kernels/" + url.PathEscape(kernelID))
	if err != nil {
		return fmt.Errorf("delete kernel %s: %w", kernelID, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete kernel %s: status %d", kernelID, resp.StatusCode())
	}
	return nil
}
