package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// RegionStore is what the region server needs from the model layer.
type RegionStore interface {
	// RecordBootImages replaces the catalog recorded for a rack.
	RecordBootImages(rackID string, images []domain.BootImage) error
	// BootSources returns the sources configured for a rack.
	BootSources(rackID string) ([]BootSource, error)
	// Proxies returns the HTTP/HTTPS proxy URLs, "" when unset.
	Proxies() (httpURL, httpsURL string, err error)
}

// RegionServer answers the commands rack controllers send to the region.
type RegionServer struct {
	Store RegionStore
	Log   *zap.Logger

	subs []*nats.Subscription
}

// NewRegionServer creates a region-side RPC server.
func NewRegionServer(store RegionStore, log *zap.Logger) *RegionServer {
	return &RegionServer{Store: store, Log: log}
}

// Subscribe registers the region's subjects on the connection.
func (s *RegionServer) Subscribe(conn *nats.Conn) error {
	handlers := map[string]func([]byte) (any, error){
		SubjectReportBootImages: s.handleReportBootImages,
		SubjectGetBootSources:   s.handleGetBootSources,
		SubjectGetProxies:       s.handleGetProxies,
	}
	for subject, handler := range handlers {
		sub, err := conn.Subscribe(subject, s.respond(subject, handler))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Close drains the server's subscriptions.
func (s *RegionServer) Close() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.Log.Warn("failed to drain subscription",
				zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
}

func (s *RegionServer) respond(subject string, handler func([]byte) (any, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		resp, err := handler(msg.Data)
		if err != nil {
			s.Log.Error("rpc handler failed", zap.String("subject", subject), zap.Error(err))
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			s.Log.Error("failed to encode rpc response", zap.String("subject", subject), zap.Error(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			s.Log.Error("failed to send rpc response", zap.String("subject", subject), zap.Error(err))
		}
	}
}

func (s *RegionServer) handleReportBootImages(data []byte) (any, error) {
	var req ReportBootImagesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed ReportBootImages request: %w", err)
	}
	images := make([]domain.BootImage, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, domain.BootImage{
			Architecture:    img.Architecture,
			SubArchitecture: img.SubArchitecture,
			Release:         img.Release,
			Purpose:         img.Purpose,
		})
	}
	if err := s.Store.RecordBootImages(req.UUID, images); err != nil {
		return nil, fmt.Errorf("failed to record boot images for rack %s: %w", req.UUID, err)
	}
	s.Log.Info("recorded boot images",
		zap.String("rack", req.UUID), zap.Int("count", len(images)))
	return ReportBootImagesResponse{}, nil
}

func (s *RegionServer) handleGetBootSources(data []byte) (any, error) {
	var req GetBootSourcesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed GetBootSources request: %w", err)
	}
	sources, err := s.Store.BootSources(req.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load boot sources for rack %s: %w", req.UUID, err)
	}
	if sources == nil {
		sources = []BootSource{}
	}
	return GetBootSourcesResponse{Sources: sources}, nil
}

func (s *RegionServer) handleGetProxies(data []byte) (any, error) {
	httpURL, httpsURL, err := s.Store.Proxies()
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy config: %w", err)
	}
	var resp GetProxiesResponse
	if httpURL != "" {
		resp.HTTP = &httpURL
	}
	if httpsURL != "" {
		resp.HTTPS = &httpsURL
	}
	return resp, nil
}
