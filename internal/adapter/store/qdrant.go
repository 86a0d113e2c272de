package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// qdrantVectorName is the named vector holding item embeddings. Points that
// lack it are stored but never match a search.
const qdrantVectorName = "content"

// QdrantStore implements port.VectorStore on a Qdrant collection. The point id
// is the item id; item fields live in the payload.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
	writeMu     sync.Mutex
}

// NewQdrantStore connects to addr (host:port of the gRPC API) and makes sure
// the collection exists.
func NewQdrantStore(ctx context.Context, addr, collection string, dimension int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("qdrant get collection: %w", err)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_ParamsMap{
			ParamsMap: &pb.VectorParamsMap{Map: map[string]*pb.VectorParams{
				qdrantVectorName: {Size: uint64(s.dimension), Distance: pb.Distance_Cosine},
			}},
		}},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

// Upsert sends all records in one request. Insertion sequence numbers of
// existing points are carried over so tie order stays stable.
func (s *QdrantStore) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.dimension); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seqs, err := s.existingSeqs(ctx, records)
	if err != nil {
		return err
	}

	next := time.Now().UnixNano()
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		seq, ok := seqs[r.Item.ID]
		if !ok {
			seq = next + int64(i)
			seqs[r.Item.ID] = seq
		}

		named := map[string]*pb.Vector{}
		if r.HasEmbedding() {
			named[qdrantVectorName] = &pb.Vector{Data: r.Embedding}
		}
		points[i] = &pb.PointStruct{
			Id:      pointID(r.Item.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{Vectors: &pb.NamedVectors{Vectors: named}}},
			Payload: itemPayload(r.Item, seq),
		}
	}

	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) existingSeqs(ctx context.Context, records []domain.Record) (map[int64]int64, error) {
	ids := make([]*pb.PointId, len(records))
	for i, r := range records {
		ids[i] = pointID(r.Item.ID)
	}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{"seq"}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get points: %w", err)
	}

	seqs := make(map[int64]int64, len(records))
	for _, pt := range resp.GetResult() {
		if v, ok := pt.GetPayload()["seq"]; ok {
			seqs[int64(pt.GetId().GetNum())] = v.GetIntegerValue()
		}
	}
	return seqs, nil
}

// Query searches the named vector, so points without an embedding never match.
// Qdrant breaks score ties by its own order, so the search asks for one
// extra hit and is widened while the last hit returned ties with the k-th; the hits are then
// ordered by score and insertion sequence and cut to k.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d components, want %d", port.ErrDimensionMismatch, len(vector), s.dimension)
	}

	var points []*pb.ScoredPoint
	for limit := k + 1; ; limit *= 2 {
		var err error
		points, err = s.search(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		if !tieAtBoundary(scores(points), limit, k) {
			break
		}
	}

	type scored struct {
		result domain.SearchResult
		seq    int64
	}
	hits := make([]scored, len(points))
	for i, pt := range points {
		item, seq := payloadItem(pt.GetId().GetNum(), pt.GetPayload())
		hits[i] = scored{result: domain.SearchResult{Item: item, Score: float64(pt.GetScore())}, seq: seq}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].seq < hits[j].seq
	})

	results := make([]domain.SearchResult, min(k, len(hits)))
	for i := range results {
		results[i] = hits[i].result
	}
	return results, nil
}

func (s *QdrantStore) search(ctx context.Context, vector []float32, limit int) ([]*pb.ScoredPoint, error) {
	name := qdrantVectorName
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		VectorName:     &name,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	return resp.GetResult(), nil
}

func scores(points []*pb.ScoredPoint) []float32 {
	out := make([]float32, len(points))
	for i, pt := range points {
		out[i] = pt.GetScore()
	}
	return out
}

// tieAtBoundary reports whether a search capped at limit (> k) may have
// dropped points tied with the k-th hit. scores are in descending order.
func tieAtBoundary(scores []float32, limit, k int) bool {
	if len(scores) < limit || len(scores) <= k {
		return false
	}
	return scores[len(scores)-1] == scores[k-1]
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Clear deletes every point; an empty filter matches all of them.
func (s *QdrantStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: &pb.Filter{},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant clear: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func pointID(id int64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
}

func itemPayload(it domain.Item, seq int64) map[string]*pb.Value {
	topics := make([]*pb.Value, len(it.Topics))
	for i, t := range it.Topics {
		topics[i] = stringValue(t)
	}
	return map[string]*pb.Value{
		"name":        stringValue(it.Name),
		"description": stringValue(it.Description),
		"url":         stringValue(it.URL),
		"star_count":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(it.StarCount)}},
		"topics":      {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: topics}}},
		"content":     stringValue(it.Content),
		"seq":         {Kind: &pb.Value_IntegerValue{IntegerValue: seq}},
	}
}

func payloadItem(id uint64, payload map[string]*pb.Value) (domain.Item, int64) {
	item := domain.Item{
		ID:          int64(id),
		Name:        payload["name"].GetStringValue(),
		Description: payload["description"].GetStringValue(),
		URL:         payload["url"].GetStringValue(),
		StarCount:   int(payload["star_count"].GetIntegerValue()),
		Content:     payload["content"].GetStringValue(),
		Topics:      []string{},
	}
	for _, v := range payload["topics"].GetListValue().GetValues() {
		item.Topics = append(item.Topics, v.GetStringValue())
	}
	return item, payload["seq"].GetIntegerValue()
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

var _ port.VectorStore = (*QdrantStore)(nil)
