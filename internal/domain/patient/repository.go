package patient

import "context"

// Repository is the durable store for patients and their shares
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id string) (*Patient, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Patient, error)
	List(ctx context.Context) ([]*Patient, error)

	CreateShare(ctx context.Context, s *Share) error
	UpdateShare(ctx context.Context, s *Share) error
	ListShares(ctx context.Context, patientID string) ([]*Share, error)
	ListSharesByGrantee(ctx context.Context, accountID string) ([]*Share, error)
}
