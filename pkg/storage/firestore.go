package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Records are stored as JSON strings in a "json" field.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) stateDoc() *firestore.DocumentRef {
	return f.client.Collection("ledger").Doc("state")
}

func (f *FirestoreProvider) summaries() *firestore.CollectionRef {
	return f.client.Collection("daily_summaries")
}

func decodeJSONField(doc *firestore.DocumentSnapshot, dest any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// GetDailyState retrieves the "ledger/state" document.
func (f *FirestoreProvider) GetDailyState(ctx context.Context) (types.DailyState, error) {
	doc, err := f.stateDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.DailyState{}, ErrStateNotFound
		}
		return types.DailyState{}, fmt.Errorf("failed to fetch state doc: %w", err)
	}
	var s types.DailyState
	if err := decodeJSONField(doc, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid state doc", slog.Any("error", err))
		return types.DailyState{}, err
	}
	return s, nil
}

// SetDailyState replaces the "ledger/state" document.
func (f *FirestoreProvider) SetDailyState(ctx context.Context, state types.DailyState) error {
	jsonBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = f.stateDoc().Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"updated": state.LastUpdated,
	})
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// CreateDailySummary creates "daily_summaries/<date>". Create fails if the
// document exists, which maps to ErrSummaryExists.
func (f *FirestoreProvider) CreateDailySummary(ctx context.Context, summary types.DailySummary) (string, error) {
	if !validDate(summary.Date) {
		return "", fmt.Errorf("invalid summary date %q", summary.Date)
	}
	jsonBytes, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	ref := f.summaries().Doc(summary.Date)
	location := "firestore://daily_summaries/" + summary.Date
	_, err = ref.Create(ctx, map[string]interface{}{
		"json":        string(jsonBytes),
		"finalizedAt": summary.FinalizedAt,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", fmt.Errorf("%w: %s", ErrSummaryExists, location)
		}
		return "", fmt.Errorf("failed to create summary: %w", err)
	}
	return location, nil
}

// GetDailySummary retrieves "daily_summaries/<date>".
func (f *FirestoreProvider) GetDailySummary(ctx context.Context, date string) (types.DailySummary, error) {
	if !validDate(date) {
		return types.DailySummary{}, fmt.Errorf("invalid summary date %q", date)
	}
	doc, err := f.summaries().Doc(date).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.DailySummary{}, ErrSummaryNotFound
		}
		return types.DailySummary{}, fmt.Errorf("failed to fetch summary doc: %w", err)
	}
	var s types.DailySummary
	if err := decodeJSONField(doc, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid summary doc", slog.String("date", date), slog.Any("error", err))
		return types.DailySummary{}, err
	}
	return s, nil
}

// ListDailySummaryDates returns the summary document IDs in order.
func (f *FirestoreProvider) ListDailySummaryDates(ctx context.Context) ([]string, error) {
	iter := f.summaries().
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var dates []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating summaries: %w", err)
		}
		dates = append(dates, doc.Ref.ID)
	}
	return dates, nil
}

var _ Database = (*FirestoreProvider)(nil)
