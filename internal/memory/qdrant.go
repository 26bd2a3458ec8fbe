package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"termcoder/internal/logging"
)

const (
	payloadText     = "text"
	payloadCreated  = "created_at"
	payloadMetadata = "metadata"
	scrollPage      = 256
)

// QdrantBackend stores memories in a Qdrant collection over gRPC. The
// collection is created on first use with cosine distance.
type QdrantBackend struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	conn        io.Closer
	collection  string
	dimensions  int

	mu      sync.Mutex
	ensured bool
}

// NewQdrantBackend connects to a Qdrant gRPC endpoint (host:port).
func NewQdrantBackend(addr, collection string, dimensions int) (*QdrantBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant %s: %v", ErrStoreUnavailable, addr, err)
	}
	logging.Memory("Qdrant backend at %s (collection=%s, dims=%d)", addr, collection, dimensions)
	return newQdrantBackend(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), conn, collection, dimensions), nil
}

func newQdrantBackend(points pb.PointsClient, collections pb.CollectionsClient, conn io.Closer, collection string, dimensions int) *QdrantBackend {
	if collection == "" {
		collection = "app_collection"
	}
	return &QdrantBackend{
		points:      points,
		collections: collections,
		conn:        conn,
		collection:  collection,
		dimensions:  dimensions,
	}
}

func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}

	resp, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return grpcErr("list collections", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == b.collection {
			b.ensured = true
			return nil
		}
	}

	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(b.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return grpcErr("create collection", err)
	}
	logging.Memory("Created qdrant collection %s", b.collection)
	b.ensured = true
	return nil
}

// Upsert implements Backend.
func (b *QdrantBackend) Upsert(ctx context.Context, points []Point) error {
	if err := b.ensureCollection(ctx); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		meta := make(map[string]*pb.Value, len(p.Metadata))
		for k, v := range p.Metadata {
			meta[k] = stringValue(v)
		}
		qPoints[i] = &pb.PointStruct{
			Id: pointID(p.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				payloadText:    stringValue(p.Text),
				payloadCreated: {Kind: &pb.Value_IntegerValue{IntegerValue: now}},
				payloadMetadata: {Kind: &pb.Value_StructValue{
					StructValue: &pb.Struct{Fields: meta},
				}},
			},
		}
	}

	wait := true
	_, err := b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         qPoints,
	})
	if err != nil {
		return grpcErr("upsert points", err)
	}
	return nil
}

// Search implements Backend.
func (b *QdrantBackend) Search(ctx context.Context, vector []float32, k int, threshold float64) ([]Record, error) {
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	scoreThreshold := float32(threshold)
	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.collection,
		Vector:         vector,
		Limit:          uint64(k),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, grpcErr("search points", err)
	}

	out := make([]Record, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		rec := recordFromPayload(r.GetId(), r.GetPayload())
		rec.Score = float64(r.GetScore())
		out = append(out, rec)
	}
	return out, nil
}

// Get implements Backend.
func (b *QdrantBackend) Get(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	resp, err := b.points.Get(ctx, &pb.GetPoints{
		CollectionName: b.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, grpcErr("get point", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := recordFromPayload(resp.GetResult()[0].GetId(), resp.GetResult()[0].GetPayload())
	return &rec, nil
}

// Delete implements Backend.
func (b *QdrantBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.Get(ctx, id); err != nil {
		return err
	}
	return b.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
		},
	})
}

// DeleteWhere implements Backend.
func (b *QdrantBackend) DeleteWhere(ctx context.Context, key, value string) (int, error) {
	if err := b.ensureCollection(ctx); err != nil {
		return 0, err
	}

	filter := &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   payloadMetadata + "." + key,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
				},
			},
		}},
	}

	exact := true
	countResp, err := b.points.Count(ctx, &pb.CountPoints{
		CollectionName: b.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, grpcErr("count points", err)
	}
	n := int(countResp.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}

	err = b.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
	})
	return n, err
}

func (b *QdrantBackend) deletePoints(ctx context.Context, selector *pb.PointsSelector) error {
	wait := true
	_, err := b.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         selector,
	})
	if err != nil {
		return grpcErr("delete points", err)
	}
	return nil
}

// List implements Backend. Records are ordered by creation time.
func (b *QdrantBackend) List(ctx context.Context, limit int) ([]Record, error) {
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var out []Record
	var offset *pb.PointId
	for {
		page := uint32(scrollPage)
		resp, err := b.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: b.collection,
			Offset:         offset,
			Limit:          &page,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, grpcErr("scroll points", err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, recordFromPayload(p.GetId(), p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Backend.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	if err := b.ensureCollection(ctx); err != nil {
		return 0, err
	}
	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: b.collection, Exact: &exact})
	if err != nil {
		return 0, grpcErr("count points", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Clear implements Backend by dropping the collection; it is recreated on
// next use.
func (b *QdrantBackend) Clear(ctx context.Context) error {
	_, err := b.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: b.collection})
	if err != nil && status.Code(err) != codes.NotFound {
		return grpcErr("delete collection", err)
	}
	b.mu.Lock()
	b.ensured = false
	b.mu.Unlock()
	return nil
}

// Name implements Backend.
func (b *QdrantBackend) Name() string { return "qdrant:" + b.collection }

// Close implements Backend.
func (b *QdrantBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func recordFromPayload(id *pb.PointId, payload map[string]*pb.Value) Record {
	rec := Record{ID: id.GetUuid()}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%d", id.GetNum())
	}
	rec.Text = payload[payloadText].GetStringValue()
	if ms := payload[payloadCreated].GetIntegerValue(); ms > 0 {
		rec.CreatedAt = time.UnixMilli(ms)
	}
	if fields := payload[payloadMetadata].GetStructValue().GetFields(); len(fields) > 0 {
		rec.Metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			rec.Metadata[k] = v.GetStringValue()
		}
	}
	return rec
}

func grpcErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: qdrant %s: %v", ErrStoreUnavailable, op, err)
	case codes.NotFound:
		return fmt.Errorf("%w: qdrant %s: %v", ErrNotFound, op, err)
	default:
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
}
