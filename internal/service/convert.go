package service

import (
	"time"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/timeclock"
)

// ── 模型 → DTO 转换 ──

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toUserResponse(u *model.User) *dto.UserResponse {
	return &dto.UserResponse{
		ID:          u.UserID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Status:      u.Status,
		LastLoginAt: formatTimePtr(u.LastLoginAt),
		CreatedAt:   formatTime(u.CreatedAt),
		Version:     u.Version,
	}
}

func toTimeEntryResponse(e *model.TimeEntry) *dto.TimeEntryResponse {
	resp := &dto.TimeEntryResponse{
		ID:                e.EntryID,
		UserID:            e.UserID,
		EntryType:         e.EntryType,
		Timestamp:         formatTime(e.Timestamp),
		OriginalTimestamp: formatTimePtr(e.OriginalTimestamp),
		IsManual:          e.IsManual,
		Status:            e.Status,
		ModifiedBy:        e.ModifiedBy,
		Reason:            e.ModificationReason,
		Latitude:          e.Latitude,
		Longitude:         e.Longitude,
		Notes:             e.Notes,
		Version:           e.Version,
	}
	if e.User != nil {
		resp.UserName = e.User.Name
	}
	return resp
}

func toTimeEntryResponses(entries []model.TimeEntry) []dto.TimeEntryResponse {
	result := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		result = append(result, *toTimeEntryResponse(&entries[i]))
	}
	return result
}

func toIncidentResponse(i *model.Incident) *dto.IncidentResponse {
	resp := &dto.IncidentResponse{
		ID:                i.IncidentID,
		UserID:            i.UserID,
		Type:              i.Type,
		Status:            i.Status,
		Date:              i.Date,
		TimeEntryID:       i.TimeEntryID,
		OpenTimestamp:     formatTime(i.OpenTimestamp),
		ImpliedEnd:        formatTime(i.ImpliedEnd),
		RequestedTime:     formatTimePtr(i.RequestedTime),
		Message:           i.Message,
		ResolutionNote:    i.ResolutionNote,
		ResolvedBy:        i.ResolvedBy,
		ResolvedAt:        formatTimePtr(i.ResolvedAt),
		CorrectionEntryID: i.CorrectionEntryID,
		CreatedAt:         formatTime(i.CreatedAt),
		Version:           i.Version,
	}
	if i.User != nil {
		resp.UserName = i.User.Name
	}
	return resp
}

func toIncidentResponses(incidents []model.Incident) []dto.IncidentResponse {
	result := make([]dto.IncidentResponse, 0, len(incidents))
	for i := range incidents {
		result = append(result, *toIncidentResponse(&incidents[i]))
	}
	return result
}

// ── 汇总结果 → DTO ──

func toSessionPairResponse(p timeclock.SessionPair) dto.SessionPairResponse {
	resp := dto.SessionPairResponse{
		ClockInID:       p.ClockIn.ID,
		ClockIn:         formatTime(p.ClockIn.Timestamp),
		DurationMinutes: p.DurationMinutes,
	}
	switch out := p.ClockOut.(type) {
	case timeclock.Event:
		resp.ClockOut = &dto.ClockOutRef{ID: out.ID, Timestamp: formatTime(out.Timestamp)}
	case timeclock.SyntheticExit:
		resp.ClockOut = &dto.ClockOutRef{
			Timestamp: formatTime(out.Timestamp),
			Synthetic: true,
			Reason:    string(out.Reason),
			Label:     out.Label(),
			Note:      out.Note(),
		}
	}
	return resp
}

func toDailySummaryResponse(d timeclock.DailySummary) dto.DailySummaryResponse {
	pairs := make([]dto.SessionPairResponse, 0, len(d.Pairs))
	for _, p := range d.Pairs {
		pairs = append(pairs, toSessionPairResponse(p))
	}
	return dto.DailySummaryResponse{
		Date:             d.Date,
		Pairs:            pairs,
		TotalMinutes:     d.TotalMinutes,
		TotalHours:       d.TotalHours,
		IsComplete:       d.IsComplete,
		HasModifications: d.HasModifications,
	}
}

func toPeriodSummaryResponse(p *timeclock.PeriodSummary, startDay, endDay string) *dto.PeriodSummaryResponse {
	days := make([]dto.DailySummaryResponse, 0, len(p.DailySummaries))
	for _, d := range p.DailySummaries {
		days = append(days, toDailySummaryResponse(d))
	}
	return &dto.PeriodSummaryResponse{
		StartDate:          startDay,
		EndDate:            endDay,
		DailySummaries:     days,
		TotalDays:          p.TotalDays,
		TotalHours:         p.TotalHours,
		AverageHoursPerDay: p.AverageHoursPerDay,
	}
}
