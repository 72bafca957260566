// Package redis stores chunks as hashes indexed by RediSearch (Redis 8+).
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"rag-kb/internal/vectorstore"

	"github.com/redis/rueidis"
)

const (
	keyPrefix   = "rag-kb:"
	vectorField = "vector"
	scoreField  = "__vector_score"

	// deleteBatch bounds the number of keys fetched per FT.SEARCH while
	// purging.
	deleteBatch = 500
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

type Store struct {
	client rueidis.Client
}

func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreForTest wraps an existing client.
func NewStoreForTest(client rueidis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Name() string { return "redis" }

func indexName(collection string) string { return keyPrefix + collection + ":idx" }

func docPrefix(collection string) string { return keyPrefix + collection + ":" }

func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	cmd := s.client.B().Arbitrary("FT.INFO").Args(indexName(collection)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CollectionDimension is not read back from FT.INFO; the reply layout
// differs between Redis releases.
func (s *Store) CollectionDimension(context.Context, string) (int, error) {
	return 0, nil
}

func (s *Store) CreateCollection(ctx context.Context, collection string, dimension int) error {
	args := []string{
		indexName(collection),
		"ON", "HASH",
		"PREFIX", "1", docPrefix(collection),
		"SCHEMA",
		vectorstore.KeyUserID, "TAG",
		vectorstore.KeyFileName, "TAG", "SEPARATOR", "\x1f",
		vectorstore.KeySource, "TAG", "SEPARATOR", "\x1f",
		vectorstore.KeyFileType, "TAG",
		vectorstore.KeyChunkIndex, "NUMERIC",
		vectorField, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dimension),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return vectorstore.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	cmds := make(rueidis.Commands, 0, len(points))
	for _, p := range points {
		cmds = append(cmds, s.client.B().Hset().
			Key(docPrefix(collection)+p.ID).
			FieldValue().
			FieldValue(vectorstore.KeyText, p.Payload.Text).
			FieldValue(vectorstore.KeySource, p.Payload.Source).
			FieldValue(vectorstore.KeyUserID, p.Payload.UserID).
			FieldValue(vectorstore.KeyFileType, p.Payload.FileType).
			FieldValue(vectorstore.KeyFileName, p.Payload.FileName).
			FieldValue(vectorstore.KeyChunkIndex, strconv.Itoa(p.Payload.ChunkIndex)).
			FieldValue(vectorField, vectorToBytes(p.Vector)).
			Build())
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("hset %s: %w", points[i].ID, err)
		}
	}
	return nil
}

var returnFields = []string{
	vectorstore.KeyText,
	vectorstore.KeySource,
	vectorstore.KeyUserID,
	vectorstore.KeyFileType,
	vectorstore.KeyFileName,
	vectorstore.KeyChunkIndex,
	scoreField,
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	pre := buildFilter(filter)
	if pre == "" {
		pre = "*"
	} else {
		pre = "(" + pre + ")"
	}
	query := fmt.Sprintf("%s=>[KNN %d @%s $BLOB]", pre, limit, vectorField)

	args := []string{indexName(collection), query, "RETURN", strconv.Itoa(len(returnFields))}
	args = append(args, returnFields...)
	args = append(args,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(limit),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	)

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, err
	}
	return parseKNNResult(raw, docPrefix(collection))
}

// Delete pages through matching keys and removes them.
func (s *Store) Delete(ctx context.Context, collection string, filter vectorstore.Filter) error {
	query := buildFilter(filter)
	if query == "" {
		return errors.New("redis: refusing unfiltered delete")
	}

	for {
		cmd := s.client.B().Arbitrary("FT.SEARCH").
			Args(indexName(collection), query, "NOCONTENT", "LIMIT", "0", strconv.Itoa(deleteBatch), "DIALECT", "2").
			Build()
		raw, err := s.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return err
		}
		if len(raw) <= 1 {
			return nil
		}

		keys := make([]string, 0, len(raw)-1)
		for _, m := range raw[1:] {
			if k, err := m.ToString(); err == nil {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return nil
		}

		del := s.client.B().Del().Key(keys...).Build()
		if err := s.client.Do(ctx, del).Error(); err != nil {
			return err
		}
		if len(keys) < deleteBatch {
			return nil
		}
	}
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// parseKNNResult reads [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, prefix string) ([]vectorstore.ScoredPoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	out := make([]vectorstore.ScoredPoint, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(pairs)

		var score float32
		if s, err := strconv.ParseFloat(fields[scoreField], 64); err == nil {
			score = float32(max(0, 1-s)) // cosine distance to similarity
		}
		chunkIndex, _ := strconv.Atoi(fields[vectorstore.KeyChunkIndex])

		out = append(out, vectorstore.ScoredPoint{
			ID:    strings.TrimPrefix(key, prefix),
			Score: score,
			Payload: vectorstore.Payload{
				Text:       fields[vectorstore.KeyText],
				Source:     fields[vectorstore.KeySource],
				UserID:     fields[vectorstore.KeyUserID],
				FileType:   fields[vectorstore.KeyFileType],
				FileName:   fields[vectorstore.KeyFileName],
				ChunkIndex: chunkIndex,
			},
		})
	}
	return out, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func buildFilter(f vectorstore.Filter) string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", k, tagEscaper.Replace(f[k])))
	}
	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", `\,`,
	".", `\.`,
	"<", `\<`,
	">", `\>`,
	"{", `\{`,
	"}", `\}`,
	"[", `\[`,
	"]", `\]`,
	`"`, `\"`,
	"'", `\'`,
	":", `\:`,
	";", `\;`,
	"!", `\!`,
	"@", `\@`,
	"#", `\#`,
	"$", `\$`,
	"%", `\%`,
	"^", `\^`,
	"&", `\&`,
	"*", `\*`,
	"(", `\(`,
	")", `\)`,
	"-", `\-`,
	"+", `\+`,
	"=", `\=`,
	"~", `\~`,
	"|", `\|`,
	"/", `\/`,
	" ", `\ `,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), substr)
}
