package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassInstance, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ListByRoomAndDay(ctx context.Context, termID, room string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error)
	ListByTeacherAndDay(ctx context.Context, termID, teacherID string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error)
	Create(ctx context.Context, class *models.ClassInstance) error
	Update(ctx context.Context, class *models.ClassInstance) error
	Delete(ctx context.Context, id string) error
	CountEnrolled(ctx context.Context, classID string) (int, error)
}

type classCatalogRepository interface {
	FindClassTypeByID(ctx context.Context, id string) (*models.ClassType, error)
}

type classTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type classStaffRepository interface {
	FindStaffByID(ctx context.Context, id string) (*models.Staff, error)
}

// CreateClassRequest describes payload for scheduling a class instance.
type CreateClassRequest struct {
	ClassTypeID string  `json:"class_type_id" validate:"required"`
	TermID      string  `json:"term_id" validate:"required"`
	TeacherID   *string `json:"teacher_id"`
	DayOfWeek   int     `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime   string  `json:"start_time" validate:"required"`
	EndTime     string  `json:"end_time" validate:"required"`
	Room        string  `json:"room" validate:"required"`
	MaxStudents int     `json:"max_students" validate:"required,gt=0"`
	Notes       string  `json:"notes"`
}

// UpdateClassRequest updates mutable fields of a class instance.
type UpdateClassRequest struct {
	TeacherID   *string            `json:"teacher_id"`
	DayOfWeek   int                `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime   string             `json:"start_time" validate:"required"`
	EndTime     string             `json:"end_time" validate:"required"`
	Room        string             `json:"room" validate:"required"`
	MaxStudents int                `json:"max_students" validate:"required,gt=0"`
	Status      models.ClassStatus `json:"status"`
	Notes       string             `json:"notes"`
}

// ClassService orchestrates the weekly class schedule.
type ClassService struct {
	classes   classRepository
	catalog   classCatalogRepository
	terms     classTermRepository
	staff     classStaffRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a new class service instance.
func NewClassService(classes classRepository, catalog classCatalogRepository, terms classTermRepository, staff classStaffRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, catalog: catalog, terms: terms, staff: staff, validator: validate, logger: logger}
}

// List returns paginated class details.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	}
	return classes, pagination, nil
}

// Get returns a class with catalog and term context plus occupancy.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, int, error) {
	detail, err := s.classes.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	enrolled, err := s.classes.CountEnrolled(ctx, id)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}
	return detail, enrolled, nil
}

// Create schedules a class instance after checking the time range, the room
// and the teacher are all free.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.ClassInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	start, end, err := s.parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	if _, err := s.catalog.FindClassTypeByID(ctx, req.ClassTypeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class type")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if err := s.checkTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	if err := s.checkConflicts(ctx, req.TermID, req.Room, req.TeacherID, req.DayOfWeek, start, end, ""); err != nil {
		return nil, err
	}

	class := &models.ClassInstance{
		ClassTypeID: req.ClassTypeID,
		TermID:      req.TermID,
		TeacherID:   req.TeacherID,
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Room:        req.Room,
		MaxStudents: req.MaxStudents,
		Status:      models.ClassStatusScheduled,
		Notes:       req.Notes,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update reschedules a class instance, rechecking conflicts against other
// classes in the same term.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.ClassInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	start, end, err := s.parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.checkTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	if err := s.checkConflicts(ctx, class.TermID, req.Room, req.TeacherID, req.DayOfWeek, start, end, id); err != nil {
		return nil, err
	}

	class.TeacherID = req.TeacherID
	class.DayOfWeek = req.DayOfWeek
	class.StartTime = req.StartTime
	class.EndTime = req.EndTime
	class.Room = req.Room
	class.MaxStudents = req.MaxStudents
	class.Notes = req.Notes
	if req.Status != "" {
		class.Status = req.Status
	}

	if err := s.classes.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Cancel marks the class cancelled without deleting its enrollment history.
func (s *ClassService) Cancel(ctx context.Context, id string) error {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status == models.ClassStatusCancelled {
		return nil
	}
	class.Status = models.ClassStatusCancelled
	if err := s.classes.Update(ctx, class); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel class")
	}
	return nil
}

// Delete removes a class instance that never took enrollments.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.classes.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	enrolled, err := s.classes.CountEnrolled(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}
	if enrolled > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "class has enrollments")
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

func (s *ClassService) parseWindow(startTime, endTime string) (int, int, error) {
	start, err := models.MinuteOfDay(startTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidRange, "invalid start_time")
	}
	end, err := models.MinuteOfDay(endTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidRange, "invalid end_time")
	}
	if start >= end {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidRange, "start_time must be before end_time")
	}
	return start, end, nil
}

func (s *ClassService) checkTeacher(ctx context.Context, teacherID *string) error {
	if teacherID == nil {
		return nil
	}
	staff, err := s.staff.FindStaffByID(ctx, *teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if staff.Role != models.StaffRoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "staff member is not a teacher")
	}
	return nil
}

func (s *ClassService) checkConflicts(ctx context.Context, termID, room string, teacherID *string, dayOfWeek, start, end int, excludeID string) error {
	roomPeers, err := s.classes.ListByRoomAndDay(ctx, termID, room, dayOfWeek, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room availability")
	}
	if overlapsAny(start, end, roomPeers) {
		return appErrors.Clone(appErrors.ErrScheduleOverlap, "room already booked for this slot")
	}

	if teacherID == nil {
		return nil
	}
	teacherPeers, err := s.classes.ListByTeacherAndDay(ctx, termID, *teacherID, dayOfWeek, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	if overlapsAny(start, end, teacherPeers) {
		return appErrors.Clone(appErrors.ErrTeacherConflict, "teacher already scheduled for this slot")
	}
	return nil
}

func overlapsAny(start, end int, peers []models.ClassInstance) bool {
	for _, peer := range peers {
		peerStart, err := models.MinuteOfDay(peer.StartTime)
		if err != nil {
			continue
		}
		peerEnd, err := models.MinuteOfDay(peer.EndTime)
		if err != nil {
			continue
		}
		if models.TimeRangesOverlap(start, end, peerStart, peerEnd) {
			return true
		}
	}
	return false
}
