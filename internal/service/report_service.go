// internal/service/report_service.go
package service

import (
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// ReportService is the stateless read path over the campaign repository.
// Every call reflects current repository state; nothing is cached and
// nothing is mutated.
type ReportService struct {
	CampaignRepo repository.CampaignRepositoryInterface
}

type CampaignReport struct {
	TotalCampaigns int                        `json:"total_campaigns"`
	CountsByStatus map[string]int             `json:"counts_by_status"`
	Campaigns      []*model.CampaignReportRow `json:"campaigns"`
}

type CampaignDetails struct {
	Campaign *model.Campaign        `json:"campaign"`
	Steps    []*model.StepExecution `json:"steps"`
}

// Report produces the listing consumed by the report UI, filtered by status
// and paginated by limit/offset. TotalCampaigns counts rows matching the
// filter; CountsByStatus is always the global breakdown.
func (s *ReportService) Report(status string, limit, offset int) (*CampaignReport, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.CampaignRepo.ListCampaignReport(status, limit, offset)
	if err != nil {
		return nil, err
	}

	counts, err := s.CampaignRepo.CountCampaignsByStatus()
	if err != nil {
		return nil, err
	}

	return &CampaignReport{
		TotalCampaigns: total,
		CountsByStatus: counts,
		Campaigns:      rows,
	}, nil
}

// CampaignDetails returns one campaign with its full step execution history,
// for the drill-down view.
func (s *ReportService) CampaignDetails(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	steps, err := s.CampaignRepo.ListStepExecutions(campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{Campaign: campaign, Steps: steps}, nil
}
