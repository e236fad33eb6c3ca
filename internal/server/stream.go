package server

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/ws"
)

var _ ws.Source = (*Server)(nil)

// Snapshot renders the streamed payload of a group with the same response
// shapes the HTTP API serves.
func (s *Server) Snapshot(ctx context.Context, ticker string, topic ws.Topic) (any, error) {
	switch topic {
	case ws.TopicGEX:
		profile, err := s.service.GEX(ctx, analysis.GEXRequest{Symbol: ticker})
		if err != nil {
			return nil, err
		}
		return newGEXResponse(profile), nil
	case ws.TopicFlow:
		result, err := s.service.Flow(ctx, analysis.FlowRequest{Symbol: ticker})
		if err != nil {
			return nil, err
		}
		return newFlowResponse(result), nil
	case ws.TopicMaxPain:
		result, err := s.service.MaxPain(ctx, analysis.MaxPainRequest{Symbol: ticker})
		if err != nil {
			return nil, err
		}
		return newMaxPainResponse(result), nil
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
}
