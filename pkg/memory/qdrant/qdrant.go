// Package qdrant implements memory.VectorStore over the qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jllopis/steward/pkg/memory"
)

// Store talks to qdrant through the generated points and collections clients.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

var _ memory.VectorStore = (*Store)(nil)

// New dials addr without transport security. The connection is lazy, so an
// unreachable server surfaces on the first call.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn))
	s.conn = conn
	return s, nil
}

// NewWithClients builds a Store over existing clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient) *Store {
	return &Store{points: points, collections: collections}
}

// Close releases the connection opened by New.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// CreateCollection creates a cosine-distance collection of vectorSize
// dimensions. A collection that already exists is not an error.
func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	params := &pb.VectorParams{Size: vectorSize, Distance: pb.Distance_Cosine}
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig:  &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: params}},
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes points keyed by their uuid and waits for the write to apply.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	wait := true
	req := &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         make([]*pb.PointStruct, 0, len(points)),
	}
	for _, p := range points {
		req.Points = append(req.Points, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: encodePayload(p.Payload),
		})
	}
	if _, err := s.points.Upsert(ctx, req); err != nil {
		return fmt.Errorf("qdrant: upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Search returns up to limit points scoring at least scoreThreshold, with
// their payloads.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(max(limit, 1)),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", collection, err)
	}

	hits := resp.GetResult()
	out := make([]memory.SearchResult, 0, len(hits))
	for _, hit := range hits {
		id := pointID(hit.GetId())
		out = append(out, memory.SearchResult{
			ID:    id,
			Score: hit.GetScore(),
			Point: memory.Point{ID: id, Payload: decodePayload(hit.GetPayload())},
		})
	}
	return out, nil
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func encodePayload(in map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(in))
	for k, v := range in {
		if pv := encodeValue(v); pv != nil {
			out[k] = pv
		}
	}
	return out
}

// encodeValue converts the value kinds memory writes. Anything else yields
// nil and is left out of the payload.
func encodeValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case []string:
		list := &pb.ListValue{Values: make([]*pb.Value, len(val))}
		for i, s := range val {
			list.Values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: list}}
	}
	return nil
}

func decodePayload(in map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if dv, ok := decodeValue(v); ok {
			out[k] = dv
		}
	}
	return out
}

func decodeValue(v *pb.Value) (any, bool) {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue, true
	case *pb.Value_BoolValue:
		return kind.BoolValue, true
	case *pb.Value_IntegerValue:
		return kind.IntegerValue, true
	case *pb.Value_DoubleValue:
		return kind.DoubleValue, true
	case *pb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			if dv, ok := decodeValue(item); ok {
				items = append(items, dv)
			}
		}
		return items, true
	}
	return nil, false
}
