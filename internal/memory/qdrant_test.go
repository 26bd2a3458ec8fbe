package memory

import (
	"context"
	"sync"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"termcoder/internal/embedding"
)

// fakeQdrant is an in-process stand-in for the Qdrant gRPC services,
// implementing just the calls QdrantBackend makes.
type fakeQdrant struct {
	pb.PointsClient

	mu          sync.Mutex
	collections map[string]bool
	points      map[string]*pb.PointStruct
	unavailable bool
}

type fakeCollections struct {
	pb.CollectionsClient
	q *fakeQdrant
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]bool{}, points: map[string]*pb.PointStruct{}}
}

func (f *fakeQdrant) check() error {
	if f.unavailable {
		return status.Error(codes.Unavailable, "connection refused")
	}
	return nil
}

func (c fakeCollections) List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	if err := c.q.check(); err != nil {
		return nil, err
	}
	resp := &pb.ListCollectionsResponse{}
	for name := range c.q.collections {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (c fakeCollections) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	c.q.collections[in.GetCollectionName()] = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (c fakeCollections) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	delete(c.q.collections, in.GetCollectionName())
	c.q.points = map[string]*pb.PointStruct{}
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeQdrant) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	for _, p := range in.GetPoints() {
		f.points[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakeQdrant) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(f.points))
	corpus := make([][]float32, 0, len(f.points))
	for id, p := range f.points {
		ids = append(ids, id)
		corpus = append(corpus, p.GetVectors().GetVector().GetData())
	}
	resp := &pb.SearchResponse{}
	for _, hit := range embedding.FindTopK(in.GetVector(), corpus, int(in.GetLimit()), float64(in.GetScoreThreshold())) {
		p := f.points[ids[hit.Index]]
		resp.Result = append(resp.Result, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: float32(hit.Similarity)})
	}
	return resp, nil
}

func (f *fakeQdrant) Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &pb.GetResponse{}
	for _, id := range in.GetIds() {
		if p, ok := f.points[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
		}
	}
	return resp, nil
}

func (f *fakeQdrant) matches(p *pb.PointStruct, filter *pb.Filter) bool {
	for _, c := range filter.GetMust() {
		field := c.GetField()
		// keys look like "metadata.<name>"
		name := field.GetKey()[len(payloadMetadata)+1:]
		got := p.GetPayload()[payloadMetadata].GetStructValue().GetFields()[name].GetStringValue()
		if got != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func (f *fakeQdrant) Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.points {
		if in.GetFilter() == nil || f.matches(p, in.GetFilter()) {
			n++
		}
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: uint64(n)}}, nil
}

func (f *fakeQdrant) Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := in.GetPoints()
	for _, id := range sel.GetPoints().GetIds() {
		delete(f.points, id.GetUuid())
	}
	if filter := sel.GetFilter(); filter != nil {
		for id, p := range f.points {
			if f.matches(p, filter) {
				delete(f.points, id)
			}
		}
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakeQdrant) Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &pb.ScrollResponse{}
	for _, p := range f.points {
		resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
	}
	return resp, nil
}

func newQdrantTestService(t *testing.T) (*Service, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	backend := newQdrantBackend(fake, fakeCollections{q: fake}, nil, "test_collection", 128)
	return NewService(backend, embedding.NewHashEngine(128), Options{DefaultK: 4, ScoreThreshold: 0.5}), fake
}

func TestQdrantBackend_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, fake := newQdrantTestService(t)

	ids, err := svc.Add(ctx, []string{"fact A", "fact about go modules"}, map[string]string{"topic": "t1"})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.True(t, fake.collections["test_collection"], "collection created on first use")

	got, err := svc.Search(ctx, "fact A", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fact A", got[0].Text)
	assert.Equal(t, "t1", got[0].Metadata["topic"])

	require.NoError(t, svc.Update(ctx, ids[0], "fact B"))
	rec, err := svc.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "fact B", rec.Text)
	assert.Equal(t, "t1", rec.Metadata["topic"])

	require.NoError(t, svc.Delete(ctx, ids[0]))
	assert.ErrorIs(t, svc.Delete(ctx, ids[0]), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "not-a-uuid"), ErrNotFound)

	n, err := svc.DeleteByFilter(ctx, "topic", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Add(ctx, []string{"x"}, nil)
	require.NoError(t, err)
	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Clear(ctx))
	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
	assert.Equal(t, "qdrant:test_collection", info.Backend)
}

func TestQdrantBackend_Unavailable(t *testing.T) {
	t.Parallel()
	svc, fake := newQdrantTestService(t)
	fake.unavailable = true

	_, err := svc.Add(context.Background(), []string{"x"}, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
