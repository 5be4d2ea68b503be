package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dbdeck/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// mongoAdapter is the extra, non-SQL engine. Queries are JSON documents
// rather than SQL text; results normalize into the same tabular contract.
type mongoAdapter struct{}

func (mongoAdapter) Engine() domain.Engine { return domain.EngineMongoDB }

func (mongoAdapter) TestConnect(ctx context.Context, desc *domain.ConnectionDescriptor, password string) error {
	client, _, err := dialMongo(desc, password)
	if err != nil {
		return &ConnectionError{Engine: domain.EngineMongoDB, Err: err}
	}
	defer client.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(ctx, testConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return &ConnectionError{Engine: domain.EngineMongoDB, Err: err}
	}
	return nil
}

func (mongoAdapter) Open(ctx context.Context, desc *domain.ConnectionDescriptor, password string) (Handle, error) {
	client, dbName, err := dialMongo(desc, password)
	if err != nil {
		return nil, &ConnectionError{Engine: domain.EngineMongoDB, Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, &ConnectionError{Engine: domain.EngineMongoDB, Err: err}
	}
	return &mongoHandle{client: client, dbName: dbName}, nil
}

// dialMongo builds the URI and creates a client. Host may already be a full
// mongodb:// or Atlas mongodb+srv:// connection string.
func dialMongo(desc *domain.ConnectionDescriptor, password string) (*mongo.Client, string, error) {
	p := desc.Params
	var uri string

	if strings.HasPrefix(p.Host, "mongodb+srv://") || strings.HasPrefix(p.Host, "mongodb://") {
		uri = p.Host
		// Replace <password> placeholders commonly found in Atlas strings.
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := p.Port
		if port == 0 {
			port = 27017
		}
		if p.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", p.Username, password, p.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", p.Host, port)
		}
		// ExtraJSON carries authSource, replicaSet, etc.
		if p.ExtraJSON != "" && p.ExtraJSON != "{}" {
			var extras map[string]string
			if json.Unmarshal([]byte(p.ExtraJSON), &extras) == nil && len(extras) > 0 {
				params := make([]string, 0, len(extras))
				for k, v := range extras {
					params = append(params, k+"="+v)
				}
				sort.Strings(params)
				uri += "?" + strings.Join(params, "&")
			}
		}
	}

	dbName := p.Database
	if dbName == "" {
		dbName = "test"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, "", err
	}
	return client, dbName, nil
}

type mongoHandle struct {
	client *mongo.Client
	dbName string

	closeOnce sync.Once
	closeErr  error
}

// mongoQuery is the JSON structure callers write instead of SQL.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default), insertOne, updateMany, deleteMany, aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
	Update     map[string]any `json:"update,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

func (h *mongoHandle) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("invalid query JSON: %w", err)}
	}
	if mq.Collection == "" {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("query must specify 'collection'")}
	}

	// Second pass: Extended JSON so $oid, $date, $numberLong survive.
	mq.Filter = unmarshalEJSON(mq.Filter)
	mq.Document = unmarshalEJSON(mq.Document)
	mq.Update = unmarshalEJSON(mq.Update)
	mq.Projection = unmarshalEJSON(mq.Projection)
	mq.Sort = unmarshalEJSON(mq.Sort)

	coll := h.client.Database(h.dbName).Collection(mq.Collection)

	op := mq.Operation
	if op == "" {
		op = "find"
	}

	switch op {
	case "find":
		return h.execFind(ctx, coll, mq)
	case "aggregate":
		return h.execAggregate(ctx, coll, mq)
	case "insertOne":
		return h.execInsertOne(ctx, coll, mq)
	case "updateMany":
		return h.execUpdateMany(ctx, coll, mq)
	case "deleteMany":
		return h.execDeleteMany(ctx, coll, mq)
	default:
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("unsupported operation: %s", op)}
	}
}

func (h *mongoHandle) execFind(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*Result, error) {
	opts := options.Find()
	if mq.Projection != nil {
		opts.SetProjection(mq.Projection)
	}
	if mq.Sort != nil {
		opts.SetSort(mq.Sort)
	}
	filter := mq.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}
	return h.drainCursor(ctx, cursor)
}

func (h *mongoHandle) execAggregate(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*Result, error) {
	pipeline := mq.Pipeline
	if pipeline == nil {
		pipeline = []any{}
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}
	return h.drainCursor(ctx, cursor)
}

func (h *mongoHandle) execInsertOne(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*Result, error) {
	if mq.Document == nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("insertOne requires 'document'")}
	}
	if _, err := coll.InsertOne(ctx, mq.Document); err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}
	return &Result{Rows: []map[string]any{}, RowCount: 1, IsWrite: true}, nil
}

func (h *mongoHandle) execUpdateMany(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*Result, error) {
	if mq.Update == nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("updateMany requires 'update'")}
	}
	filter := mq.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	res, err := coll.UpdateMany(ctx, filter, mq.Update)
	if err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}
	return &Result{Rows: []map[string]any{}, RowCount: int(res.ModifiedCount), IsWrite: true}, nil
}

func (h *mongoHandle) execDeleteMany(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*Result, error) {
	filter := mq.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	res, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}
	return &Result{Rows: []map[string]any{}, RowCount: int(res.DeletedCount), IsWrite: true}, nil
}

// drainCursor reads all documents and normalizes them into the tabular
// contract. Columns are the union of keys in document order: _id first,
// the rest alphabetical for determinism across documents.
func (h *mongoHandle) drainCursor(ctx context.Context, cursor *mongo.Cursor) (*Result, error) {
	defer cursor.Close(ctx)

	var docs []bson.D
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("decode: %w", err)}
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: err}
	}

	colSet := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !colSet[elem.Key] {
				colSet[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	out := &Result{Columns: columns, Rows: []map[string]any{}}
	for _, doc := range docs {
		row := make(map[string]any, len(doc))
		for _, elem := range doc {
			row[elem.Key] = formatMongoValue(elem.Value)
		}
		out.Rows = append(out.Rows, row)
	}
	out.RowCount = len(out.Rows)
	return out, nil
}

// formatMongoValue converts BSON values into JSON-friendly scalars.
func formatMongoValue(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.D:
		m := make(map[string]any, len(val))
		for _, elem := range val {
			m[elem.Key] = formatMongoValue(elem.Value)
		}
		return m
	case bson.A:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = formatMongoValue(item)
		}
		return arr
	default:
		return formatValue(v)
	}
}

// unmarshalEJSON re-encodes a field and parses it as MongoDB Extended JSON so
// typed values ($oid, $date, $numberLong) become proper BSON.
func unmarshalEJSON(field map[string]any) map[string]any {
	if field == nil {
		return nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return field
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return field
	}
	result := make(map[string]any, len(doc))
	for _, elem := range doc {
		result[elem.Key] = elem.Value
	}
	return result
}

// Schema lists collections and samples one document each for field names.
func (h *mongoHandle) Schema(ctx context.Context) (*SchemaInfo, error) {
	names, err := h.client.Database(h.dbName).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, &QueryError{Engine: domain.EngineMongoDB, Err: fmt.Errorf("list collections: %w", err)}
	}
	sort.Strings(names)

	schema := &SchemaInfo{}
	for _, name := range names {
		info := TableInfo{Name: name, PrimaryKeys: []string{"_id"}}

		var sample bson.D
		err := h.client.Database(h.dbName).Collection(name).FindOne(ctx, bson.D{}).Decode(&sample)
		if err == nil {
			for _, elem := range sample {
				info.Columns = append(info.Columns, ColumnInfo{
					Name: elem.Key,
					Type: fmt.Sprintf("%T", elem.Value),
				})
			}
		}
		schema.Tables = append(schema.Tables, info)
	}
	return schema, nil
}

// ApplyMutations updates or deletes documents by their _id key.
func (h *mongoHandle) ApplyMutations(ctx context.Context, table string, mutations []Mutation) (*MutationResult, error) {
	coll := h.client.Database(h.dbName).Collection(table)

	result := &MutationResult{}
	for _, m := range mutations {
		filter := buildMongoFilter(m.RowKey)

		var execErr error
		switch m.Type {
		case "update":
			if len(m.Changes) == 0 {
				result.Applied++
				continue
			}
			_, execErr = coll.UpdateOne(ctx, filter, bson.M{"$set": m.Changes})
		case "delete":
			_, execErr = coll.DeleteOne(ctx, filter)
		default:
			execErr = fmt.Errorf("unknown mutation type: %s", m.Type)
		}

		if execErr != nil {
			result.Errors = append(result.Errors, execErr.Error())
		} else {
			result.Applied++
		}
	}
	return result, nil
}

// buildMongoFilter converts a row key into a filter, reviving hex _id
// strings back into ObjectIDs.
func buildMongoFilter(rowKey map[string]any) bson.M {
	filter := bson.M{}
	for k, v := range rowKey {
		if k == "_id" {
			if s, ok := v.(string); ok {
				if oid, err := bson.ObjectIDFromHex(s); err == nil {
					filter[k] = oid
					continue
				}
			}
		}
		filter[k] = v
	}
	return filter
}

func (h *mongoHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.client.Disconnect(context.Background())
	})
	return h.closeErr
}
