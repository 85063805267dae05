package dynamodb

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"notemesh/domain/canvas"
	pkgerrors "notemesh/pkg/errors"
)

// canvasItem is the metadata item of a canvas, stored under its owner
type canvasItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	CanvasID   string         `dynamodbav:"CanvasID"`
	UserID     string         `dynamodbav:"UserID"`
	Title      string         `dynamodbav:"Title"`
	NotebookID string         `dynamodbav:"NotebookID,omitempty"`
	Settings   map[string]any `dynamodbav:"Settings,omitempty"`
	CreatedAt  string         `dynamodbav:"CreatedAt"`
	UpdatedAt  string         `dynamodbav:"UpdatedAt"`
}

// nodeItem is one node of a canvas graph. Seq keeps the canvas order.
type nodeItem struct {
	PK           string         `dynamodbav:"PK"`
	SK           string         `dynamodbav:"SK"`
	EntityType   string         `dynamodbav:"EntityType"`
	Seq          int            `dynamodbav:"Seq"`
	NodeID       string         `dynamodbav:"NodeID"`
	X            float64        `dynamodbav:"X"`
	Y            float64        `dynamodbav:"Y"`
	Width        *float64       `dynamodbav:"Width,omitempty"`
	Height       *float64       `dynamodbav:"Height,omitempty"`
	Text         string         `dynamodbav:"Text"`
	Tags         []string       `dynamodbav:"Tags"`
	Tasks        []taskItem     `dynamodbav:"Tasks,omitempty"`
	ClusterID    string         `dynamodbav:"ClusterID,omitempty"`
	ClusterName  string         `dynamodbav:"ClusterName,omitempty"`
	ClusterColor string         `dynamodbav:"ClusterColor,omitempty"`
	CreatedAt    string         `dynamodbav:"CreatedAt"`
	Extensions   map[string]any `dynamodbav:"Extensions,omitempty"`
}

type taskItem struct {
	Text string `dynamodbav:"Text"`
	Done bool   `dynamodbav:"Done"`
}

type edgeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Seq        int    `dynamodbav:"Seq"`
	EdgeID     string `dynamodbav:"EdgeID"`
	Source     string `dynamodbav:"Source"`
	Target     string `dynamodbav:"Target"`
	EdgeType   string `dynamodbav:"EdgeType"`
	Label      string `dynamodbav:"Label,omitempty"`
}

type clusterItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Seq        int    `dynamodbav:"Seq"`
	ClusterID  string `dynamodbav:"ClusterID"`
	Name       string `dynamodbav:"Name"`
	Color      string `dynamodbav:"Color"`
}

// CanvasRepository implements ports.CanvasRepository on DynamoDB
type CanvasRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewCanvasRepository creates a new CanvasRepository
func NewCanvasRepository(client API, tableName string, logger *zap.Logger) *CanvasRepository {
	return &CanvasRepository{client: client, tableName: tableName, logger: logger, now: time.Now}
}

func toCanvasItem(c *canvas.Canvas) canvasItem {
	return canvasItem{
		PK:         prefixUser + c.UserID,
		SK:         prefixCanvas + c.ID,
		EntityType: "CANVAS",
		CanvasID:   c.ID,
		UserID:     c.UserID,
		Title:      c.Title,
		NotebookID: c.NotebookID,
		Settings:   c.Settings,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (i canvasItem) toCanvas() *canvas.Canvas {
	created, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	return &canvas.Canvas{
		ID:         i.CanvasID,
		UserID:     i.UserID,
		Title:      i.Title,
		NotebookID: i.NotebookID,
		Settings:   i.Settings,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
}

// CreateCanvas stores a new canvas, failing if the id is taken
func (r *CanvasRepository) CreateCanvas(ctx context.Context, c *canvas.Canvas) error {
	av, err := attributevalue.MarshalMap(toCanvasItem(c))
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal canvas").WithCause(err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return pkgerrors.NewConflictError("canvas already exists").WithDetail("canvas_id", c.ID)
		}
		return pkgerrors.NewDatabaseError("CreateCanvas", err)
	}
	r.logger.Debug("Canvas stored", zap.String("canvasID", c.ID), zap.String("userID", c.UserID))
	return nil
}

// GetCanvas loads a canvas owned by userID
func (r *CanvasRepository) GetCanvas(ctx context.Context, userID, canvasID string) (*canvas.Canvas, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       key(prefixUser+userID, prefixCanvas+canvasID),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("GetCanvas", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
	}
	var item canvasItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, pkgerrors.NewInternalError("failed to unmarshal canvas").WithCause(err)
	}
	return item.toCanvas(), nil
}

// GetDefaultCanvas returns the user's oldest canvas
func (r *CanvasRepository) GetDefaultCanvas(ctx context.Context, userID string) (*canvas.Canvas, error) {
	list, err := r.ListCanvases(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("user_id", userID)
	}
	return list[0], nil
}

// ListCanvases returns the user's canvases, oldest first
func (r *CanvasRepository) ListCanvases(ctx context.Context, userID string) ([]*canvas.Canvas, error) {
	items, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixUser+userID, "SK", prefixCanvas)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("ListCanvases", err)
	}
	var rows []canvasItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewInternalError("failed to unmarshal canvases").WithCause(err)
	}
	out := make([]*canvas.Canvas, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCanvas())
	}
	slices.SortStableFunc(out, func(a, b *canvas.Canvas) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// LoadGraph reads the nodes, edges and clusters of a canvas
func (r *CanvasRepository) LoadGraph(ctx context.Context, userID, canvasID string) (canvas.Snapshot, error) {
	if _, err := r.GetCanvas(ctx, userID, canvasID); err != nil {
		return canvas.Snapshot{}, err
	}
	items, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixCanvas+canvasID, "SK", "")
	if err != nil {
		return canvas.Snapshot{}, pkgerrors.NewDatabaseError("LoadGraph", err)
	}
	graph, err := decodeGraph(items)
	if err != nil {
		return canvas.Snapshot{}, pkgerrors.NewInternalError("failed to unmarshal graph").WithCause(err)
	}
	return graph, nil
}

// SaveGraph replaces the stored graph of a canvas with graph
func (r *CanvasRepository) SaveGraph(ctx context.Context, userID, canvasID string, graph canvas.Snapshot) error {
	update, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("UpdatedAt"), expression.Value(r.now().UTC().Format(time.RFC3339Nano)))).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return pkgerrors.NewInternalError("failed to build update").WithCause(err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       key(prefixUser+userID, prefixCanvas+canvasID),
		UpdateExpression:          update.Update(),
		ConditionExpression:       update.Condition(),
		ExpressionAttributeNames:  update.Names(),
		ExpressionAttributeValues: update.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
		}
		return pkgerrors.NewDatabaseError("SaveGraph", err)
	}

	existing, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixCanvas+canvasID, "SK", "")
	if err != nil {
		return pkgerrors.NewDatabaseError("SaveGraph", err)
	}
	puts, err := encodeGraph(canvasID, graph)
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal graph").WithCause(err)
	}

	keep := make(map[string]bool, len(puts))
	requests := make([]types.WriteRequest, 0, len(puts)+len(existing))
	for _, item := range puts {
		keep[item["SK"].(*types.AttributeValueMemberS).Value] = true
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, item := range existing {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok || keep[sk.Value] {
			continue
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: key(prefixCanvas+canvasID, sk.Value),
		}})
	}

	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		r.logger.Error("Failed to write canvas graph", zap.String("canvasID", canvasID), zap.Error(err))
		return pkgerrors.NewDatabaseError("SaveGraph", err)
	}
	r.logger.Debug("Canvas graph saved",
		zap.String("canvasID", canvasID),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
		zap.Int("writes", len(requests)),
	)
	return nil
}

// DeleteCanvas removes a canvas and its graph
func (r *CanvasRepository) DeleteCanvas(ctx context.Context, userID, canvasID string) error {
	existing, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixCanvas+canvasID, "SK", "")
	if err != nil {
		return pkgerrors.NewDatabaseError("DeleteCanvas", err)
	}
	requests := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{
		Key: key(prefixUser+userID, prefixCanvas+canvasID),
	}}}
	for _, item := range existing {
		if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: key(prefixCanvas+canvasID, sk.Value),
			}})
		}
	}
	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		return pkgerrors.NewDatabaseError("DeleteCanvas", err)
	}
	return nil
}

func encodeGraph(canvasID string, graph canvas.Snapshot) ([]map[string]types.AttributeValue, error) {
	pk := prefixCanvas + canvasID
	out := make([]map[string]types.AttributeValue, 0, len(graph.Nodes)+len(graph.Edges)+len(graph.Clusters))
	add := func(v any) error {
		av, err := attributevalue.MarshalMap(v)
		if err != nil {
			return err
		}
		out = append(out, av)
		return nil
	}

	for i, n := range graph.Nodes {
		item := nodeItem{
			PK:           pk,
			SK:           prefixNode + n.ID,
			EntityType:   "NODE",
			Seq:          i,
			NodeID:       n.ID,
			X:            n.Position.X,
			Y:            n.Position.Y,
			Text:         n.Data.Text,
			Tags:         n.Data.Tags,
			ClusterID:    n.Data.ClusterID,
			ClusterName:  n.Data.ClusterName,
			ClusterColor: n.Data.ClusterColor,
			CreatedAt:    n.Data.CreatedAt.UTC().Format(time.RFC3339Nano),
			Extensions:   n.Data.Extensions,
		}
		if n.Dimensions != nil {
			item.Width = aws.Float64(n.Dimensions.Width)
			item.Height = aws.Float64(n.Dimensions.Height)
		}
		for _, t := range n.Data.Tasks {
			item.Tasks = append(item.Tasks, taskItem{Text: t.Text, Done: t.Done})
		}
		if err := add(item); err != nil {
			return nil, err
		}
	}
	for i, e := range graph.Edges {
		if err := add(edgeItem{
			PK:         pk,
			SK:         prefixEdge + e.ID,
			EntityType: "EDGE",
			Seq:        i,
			EdgeID:     e.ID,
			Source:     e.Source,
			Target:     e.Target,
			EdgeType:   string(e.Kind),
			Label:      e.Label,
		}); err != nil {
			return nil, err
		}
	}
	for i, c := range graph.Clusters {
		if err := add(clusterItem{
			PK:         pk,
			SK:         prefixCluster + c.ID,
			EntityType: "CLUSTER",
			Seq:        i,
			ClusterID:  c.ID,
			Name:       c.Name,
			Color:      c.Color,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeGraph(items []map[string]types.AttributeValue) (canvas.Snapshot, error) {
	var (
		nodes    []nodeItem
		edges    []edgeItem
		clusters []clusterItem
	)
	for _, item := range items {
		sk, _ := item["SK"].(*types.AttributeValueMemberS)
		if sk == nil {
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(sk.Value, prefixNode):
			var n nodeItem
			err = attributevalue.UnmarshalMap(item, &n)
			nodes = append(nodes, n)
		case strings.HasPrefix(sk.Value, prefixEdge):
			var e edgeItem
			err = attributevalue.UnmarshalMap(item, &e)
			edges = append(edges, e)
		case strings.HasPrefix(sk.Value, prefixCluster):
			var c clusterItem
			err = attributevalue.UnmarshalMap(item, &c)
			clusters = append(clusters, c)
		}
		if err != nil {
			return canvas.Snapshot{}, err
		}
	}
	slices.SortFunc(nodes, func(a, b nodeItem) int { return a.Seq - b.Seq })
	slices.SortFunc(edges, func(a, b edgeItem) int { return a.Seq - b.Seq })
	slices.SortFunc(clusters, func(a, b clusterItem) int { return a.Seq - b.Seq })

	graph := canvas.Snapshot{
		Nodes:    make([]canvas.Node, 0, len(nodes)),
		Edges:    make([]canvas.Edge, 0, len(edges)),
		Clusters: make([]canvas.Cluster, 0, len(clusters)),
	}
	for _, n := range nodes {
		created, _ := time.Parse(time.RFC3339Nano, n.CreatedAt)
		node := canvas.Node{
			ID:       n.NodeID,
			Position: canvas.Position{X: n.X, Y: n.Y},
			Data: canvas.NodeData{
				ID:           n.NodeID,
				Text:         n.Text,
				Tags:         n.Tags,
				ClusterID:    n.ClusterID,
				ClusterName:  n.ClusterName,
				ClusterColor: n.ClusterColor,
				CreatedAt:    created,
				Extensions:   n.Extensions,
			},
		}
		if n.Width != nil && n.Height != nil {
			node.Dimensions = &canvas.Dimensions{Width: *n.Width, Height: *n.Height}
		}
		for _, t := range n.Tasks {
			node.Data.Tasks = append(node.Data.Tasks, canvas.Task{Text: t.Text, Done: t.Done})
		}
		graph.Nodes = append(graph.Nodes, node)
	}
	for _, e := range edges {
		graph.Edges = append(graph.Edges, canvas.Edge{
			ID:     e.EdgeID,
			Source: e.Source,
			Target: e.Target,
			Kind:   canvas.EdgeKind(e.EdgeType),
			Label:  e.Label,
		})
	}
	for _, c := range clusters {
		graph.Clusters = append(graph.Clusters, canvas.Cluster{ID: c.ClusterID, Name: c.Name, Color: c.Color})
	}
	return graph, nil
}
