package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/service"
)

// memBlobStore implements both blob interfaces over a map.
type memBlobStore struct {
	blobs  map[string][]byte
	putErr error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.blobs[path] = b
	return nil
}

func (m *memBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.blobs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, b := range m.blobs {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := m.blobs[path]
	return ok, nil
}

// memProofStore implements domain.ProofStore.
type memProofStore struct {
	proofs []domain.Proof
}

func (m *memProofStore) Create(ctx context.Context, proof *domain.Proof) error {
	m.proofs = append(m.proofs, *proof)
	return nil
}

func (m *memProofStore) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]domain.Proof, error) {
	var out []domain.Proof
	for _, p := range m.proofs {
		if p.TradeID == tradeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func tradeInStatus(trades *memTradeStore, from, to uuid.UUID, status domain.TradeStatus) *domain.Trade {
	trade := &domain.Trade{
		ID:       uuid.New(),
		FromUser: from,
		ToUser:   to,
		Status:   status,
		Security: &domain.Security{
			RiskLevel:      domain.RiskLevelMedium,
			PhotosRequired: true,
		},
	}
	_ = trades.Create(context.Background(), nil, trade)
	return trade
}

func newProofService(trades *memTradeStore, blobs *memBlobStore, proofs *memProofStore) *service.ProofService {
	return service.NewProofService(trades, proofs, blobs, blobs, slog.New(slog.DiscardHandler))
}

func TestProofUploadAndOpen(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	trades := newMemTradeStore()
	blobs := newMemBlobStore()
	proofStore := &memProofStore{}
	svc := newProofService(trades, blobs, proofStore)

	trade := tradeInStatus(trades, from, to, domain.TradeStatusShipped)

	proof, err := svc.Upload(ctx, trade.ID, from, strings.NewReader("jpeg bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if proof.TradeID != trade.ID || proof.Uploader != from {
		t.Errorf("proof provenance = %+v", proof)
	}
	if proof.BlobKey == "" {
		t.Fatal("proof has no blob key")
	}
	if _, ok := blobs.blobs[proof.BlobKey]; !ok {
		t.Fatal("blob not written")
	}

	listed, err := svc.ListByTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("ListByTrade: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != proof.ID {
		t.Errorf("ListByTrade = %v, want the uploaded proof", listed)
	}

	rc, err := svc.Open(ctx, proof)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "jpeg bytes" {
		t.Errorf("blob content = %q", b)
	}
}

func TestProofUploadGuards(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	trades := newMemTradeStore()
	blobs := newMemBlobStore()
	proofStore := &memProofStore{}
	svc := newProofService(trades, blobs, proofStore)

	shipped := tradeInStatus(trades, from, to, domain.TradeStatusShipped)
	pending := tradeInStatus(trades, from, to, domain.TradeStatusPending)

	// A low-risk trade whose snapshot demands no photos.
	noPhotos := &domain.Trade{
		ID:       uuid.New(),
		FromUser: from,
		ToUser:   to,
		Status:   domain.TradeStatusShipped,
		Security: &domain.Security{RiskLevel: domain.RiskLevelLow},
	}
	if err := trades.Create(context.Background(), nil, noPhotos); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		tradeID     uuid.UUID
		uploader    uuid.UUID
		contentType string
		want        error
	}{
		{"missing content type", shipped.ID, from, "", domain.ErrInvalidArgument},
		{"unknown trade", uuid.New(), from, "image/jpeg", domain.ErrNotFound},
		{"non-participant", shipped.ID, uuid.New(), "image/jpeg", domain.ErrForbidden},
		{"trade not in flight", pending.ID, from, "image/jpeg", domain.ErrConflict},
		{"photos not demanded", noPhotos.ID, from, "image/jpeg", domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.tradeID, tt.uploader, strings.NewReader("x"), tt.contentType)
			if !errors.Is(err, tt.want) {
				t.Errorf("Upload error = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing was recorded for any rejected upload.
	if len(proofStore.proofs) != 0 {
		t.Errorf("proof store has %d rows, want 0", len(proofStore.proofs))
	}
}

func TestProofUploadBlobFailureSkipsRecord(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	trades := newMemTradeStore()
	blobs := newMemBlobStore()
	blobs.putErr = errors.New("bucket unreachable")
	proofStore := &memProofStore{}
	svc := newProofService(trades, blobs, proofStore)

	trade := tradeInStatus(trades, from, to, domain.TradeStatusAccepted)

	_, err := svc.Upload(ctx, trade.ID, to, strings.NewReader("x"), "image/png")
	if err == nil {
		t.Fatal("Upload = nil, want error")
	}
	if len(proofStore.proofs) != 0 {
		t.Error("proof row recorded despite blob failure")
	}
}
