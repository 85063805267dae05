package dynamodb

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"notemesh/domain/notebook"
	pkgerrors "notemesh/pkg/errors"
)

type notebookItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	NotebookID string         `dynamodbav:"NotebookID"`
	UserID     string         `dynamodbav:"UserID"`
	Title      string         `dynamodbav:"Title"`
	Color      string         `dynamodbav:"Color"`
	Icon       string         `dynamodbav:"Icon"`
	Settings   map[string]any `dynamodbav:"Settings,omitempty"`
	CreatedAt  time.Time      `dynamodbav:"CreatedAt"`
	UpdatedAt  time.Time      `dynamodbav:"UpdatedAt"`
}

type noteItem struct {
	PK               string    `dynamodbav:"PK"`
	SK               string    `dynamodbav:"SK"`
	EntityType       string    `dynamodbav:"EntityType"`
	NoteID           string    `dynamodbav:"NoteID"`
	NotebookID       string    `dynamodbav:"NotebookID"`
	UserID           string    `dynamodbav:"UserID"`
	Content          string    `dynamodbav:"Content"`
	FormattedContent string    `dynamodbav:"FormattedContent,omitempty"`
	CreatedAt        time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt        time.Time `dynamodbav:"UpdatedAt"`
}

// NotebookRepository implements ports.NotebookRepository on DynamoDB.
// Notebooks live under their owner, notes under their notebook.
type NotebookRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewNotebookRepository creates a new NotebookRepository
func NewNotebookRepository(client API, tableName string, logger *zap.Logger) *NotebookRepository {
	return &NotebookRepository{client: client, tableName: tableName, logger: logger}
}

func (r *NotebookRepository) ListNotebooks(ctx context.Context, userID string) ([]notebook.Notebook, error) {
	items, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixUser+userID, "SK", prefixNotebook)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("ListNotebooks", err)
	}
	var rows []notebookItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewInternalError("failed to unmarshal notebooks").WithCause(err)
	}
	out := make([]notebook.Notebook, 0, len(rows))
	for _, row := range rows {
		out = append(out, notebook.Notebook{
			ID:        row.NotebookID,
			UserID:    row.UserID,
			Title:     row.Title,
			Color:     row.Color,
			Icon:      row.Icon,
			Settings:  row.Settings,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b notebook.Notebook) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *NotebookRepository) SaveNotebook(ctx context.Context, nb notebook.Notebook) error {
	av, err := attributevalue.MarshalMap(notebookItem{
		PK:         prefixUser + nb.UserID,
		SK:         prefixNotebook + nb.ID,
		EntityType: "NOTEBOOK",
		NotebookID: nb.ID,
		UserID:     nb.UserID,
		Title:      nb.Title,
		Color:      nb.Color,
		Icon:       nb.Icon,
		Settings:   nb.Settings,
		CreatedAt:  nb.CreatedAt,
		UpdatedAt:  nb.UpdatedAt,
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal notebook").WithCause(err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.tableName), Item: av}); err != nil {
		return pkgerrors.NewDatabaseError("SaveNotebook", err)
	}
	return nil
}

// DeleteNotebook removes a notebook together with its notes
func (r *NotebookRepository) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	notes, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixNotebook+notebookID, "SK", prefixNote)
	if err != nil {
		return pkgerrors.NewDatabaseError("DeleteNotebook", err)
	}
	requests := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{
		Key: key(prefixUser+userID, prefixNotebook+notebookID),
	}}}
	for _, item := range notes {
		if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: key(prefixNotebook+notebookID, sk.Value),
			}})
		}
	}
	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		return pkgerrors.NewDatabaseError("DeleteNotebook", err)
	}
	r.logger.Debug("Notebook deleted", zap.String("notebookID", notebookID), zap.Int("notes", len(notes)))
	return nil
}

func (r *NotebookRepository) ListNotes(ctx context.Context, userID, notebookID string) ([]notebook.Note, error) {
	items, err := queryPrefix(ctx, r.client, r.tableName, "", "PK", prefixNotebook+notebookID, "SK", prefixNote)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("ListNotes", err)
	}
	var rows []noteItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewInternalError("failed to unmarshal notes").WithCause(err)
	}
	out := make([]notebook.Note, 0, len(rows))
	for _, row := range rows {
		if row.UserID != userID {
			continue
		}
		out = append(out, notebook.Note{
			ID:               row.NoteID,
			NotebookID:       row.NotebookID,
			Content:          row.Content,
			FormattedContent: row.FormattedContent,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.UpdatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b notebook.Note) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *NotebookRepository) SaveNote(ctx context.Context, userID string, note notebook.Note) error {
	av, err := attributevalue.MarshalMap(noteItem{
		PK:               prefixNotebook + note.NotebookID,
		SK:               prefixNote + note.ID,
		EntityType:       "NOTE",
		NoteID:           note.ID,
		NotebookID:       note.NotebookID,
		UserID:           userID,
		Content:          note.Content,
		FormattedContent: note.FormattedContent,
		CreatedAt:        note.CreatedAt,
		UpdatedAt:        note.UpdatedAt,
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal note").WithCause(err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.tableName), Item: av}); err != nil {
		return pkgerrors.NewDatabaseError("SaveNote", err)
	}
	return nil
}

func (r *NotebookRepository) DeleteNote(ctx context.Context, userID, notebookID, noteID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 key(prefixNotebook+notebookID, prefixNote+noteID),
		ConditionExpression: aws.String("UserID = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return pkgerrors.NewNotFoundError("note").WithDetail("note_id", noteID)
		}
		return pkgerrors.NewDatabaseError("DeleteNote", err)
	}
	return nil
}
