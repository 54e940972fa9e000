package coordinator

import (
	"context"
	"fmt"

	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
)

// CreateClass creates a class with an empty roster for the signed-in
// teacher.
func (c *Coordinator) CreateClass(ctx context.Context, in domain.ClassInput) (Result[domain.ClassRoom], error) {
	const op = "create class"
	in.Name = domain.NormalizeName(in.Name)
	if err := domain.Validate(in); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
	}
	teacher, ok := c.Teacher()
	if !ok {
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, ErrNotSignedIn)
	}

	var confirmed domain.ClassRoom
	sent, err := c.attempt(ctx, op, nil, func(ctx context.Context) error {
		cl, err := c.remote.CreateClass(ctx, teacher.ID, in)
		confirmed = cl
		return err
	})
	if err != nil {
		return Result[domain.ClassRoom]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result[domain.ClassRoom]{Value: confirmed, State: Confirmed}
	if !sent {
		res.Value = domain.ClassRoom{
			ID:        c.gen.NewID(),
			Name:      in.Name,
			Section:   in.Section,
			TeacherID: teacher.ID,
			Students:  []domain.Student{},
			CreatedAt: c.clock.Now(),
		}
		res.State = Optimistic
	}

	if err := c.cache.UpsertClass(ctx, res.Value); err != nil {
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionCreateClass, domain.ClassPayload{
			TempID:    res.Value.ID,
			TeacherID: teacher.ID,
			Name:      in.Name,
			Section:   in.Section,
		})
		if err != nil {
			return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.PendingActionID = id
	}
	c.putClassLocked(res.Value)
	c.count(op, string(res.State))
	return res, nil
}

// UpdateClass renames a class. The local roster is kept as is.
func (c *Coordinator) UpdateClass(ctx context.Context, classID string, in domain.ClassInput) (Result[domain.ClassRoom], error) {
	const op = "update class"
	in.Name = domain.NormalizeName(in.Name)
	if err := domain.Validate(in); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := c.Class(classID); !ok {
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s %s: %w", op, classID, ErrUnknownClass)
	}

	sent, err := c.attempt(ctx, op, []string{classID}, func(ctx context.Context) error {
		_, err := c.remote.UpdateClass(ctx, classID, in)
		return err
	})
	if err != nil {
		return Result[domain.ClassRoom]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.classIndexLocked(classID)
	if i < 0 {
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s %s: %w", op, classID, ErrUnknownClass)
	}
	updated := c.classes[i].Clone()
	updated.Name = in.Name
	updated.Section = in.Section

	res := Result[domain.ClassRoom]{Value: updated, State: Confirmed}
	if err := c.cache.UpsertClass(ctx, updated); err != nil {
		return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionUpdateClass, domain.ClassPayload{
			ClassID: classID,
			Name:    in.Name,
			Section: in.Section,
		})
		if err != nil {
			return Result[domain.ClassRoom]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.State = Optimistic
		res.PendingActionID = id
	}
	c.classes[i] = updated
	c.count(op, string(res.State))
	return res, nil
}

// DeleteClass removes a class together with its roster and sessions.
func (c *Coordinator) DeleteClass(ctx context.Context, classID string) (Result[string], error) {
	const op = "delete class"
	if _, ok := c.Class(classID); !ok {
		return Result[string]{}, fmt.Errorf("%s %s: %w", op, classID, ErrUnknownClass)
	}

	sent, err := c.attempt(ctx, op, []string{classID}, func(ctx context.Context) error {
		err := c.remote.DeleteClass(ctx, classID)
		if remote.CodeOf(err) == remote.CodeNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return Result[string]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result[string]{Value: classID, State: Confirmed}
	if err := c.cache.DeleteClass(ctx, classID); err != nil {
		return Result[string]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionDeleteClass, domain.ClassPayload{ClassID: classID})
		if err != nil {
			return Result[string]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.State = Optimistic
		res.PendingActionID = id
	}

	classes := c.classes[:0]
	for _, cl := range c.classes {
		if cl.ID != classID {
			classes = append(classes, cl)
		}
	}
	c.classes = classes
	sessions := c.sessions[:0]
	for _, s := range c.sessions {
		if s.ClassID != classID {
			sessions = append(sessions, s)
		}
	}
	c.sessions = sessions
	c.count(op, string(res.State))
	return res, nil
}

// AddStudent appends a student to a class roster.
func (c *Coordinator) AddStudent(ctx context.Context, in domain.StudentInput) (Result[domain.Student], error) {
	const op = "add student"
	in.Name = domain.NormalizeName(in.Name)
	if err := domain.Validate(in); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := c.Class(in.ClassID); !ok {
		return Result[domain.Student]{}, fmt.Errorf("%s: class %s: %w", op, in.ClassID, ErrUnknownClass)
	}

	var confirmed domain.Student
	sent, err := c.attempt(ctx, op, []string{in.ClassID}, func(ctx context.Context) error {
		s, err := c.remote.CreateStudent(ctx, in)
		confirmed = s
		return err
	})
	if err != nil {
		return Result[domain.Student]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.classIndexLocked(in.ClassID)
	if i < 0 {
		return Result[domain.Student]{}, fmt.Errorf("%s: class %s: %w", op, in.ClassID, ErrUnknownClass)
	}

	res := Result[domain.Student]{Value: confirmed, State: Confirmed}
	if !sent {
		res.Value = domain.Student{
			ID:        c.gen.NewID(),
			Name:      in.Name,
			ClassID:   in.ClassID,
			CreatedAt: c.clock.Now(),
		}
		res.State = Optimistic
	}

	updated := c.classes[i].Clone()
	updated.Students = append(updated.Students, res.Value)
	if err := c.cache.UpsertClass(ctx, updated); err != nil {
		return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionCreateStudent, domain.StudentPayload{
			TempID:  res.Value.ID,
			ClassID: in.ClassID,
			Name:    in.Name,
		})
		if err != nil {
			return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.PendingActionID = id
	}
	c.classes[i] = updated
	c.count(op, string(res.State))
	return res, nil
}

// UpdateStudent renames a student.
func (c *Coordinator) UpdateStudent(ctx context.Context, studentID string, in domain.StudentInput) (Result[domain.Student], error) {
	const op = "update student"
	in.Name = domain.NormalizeName(in.Name)
	if err := domain.Validate(in); err != nil {
		c.count(op, outcomeRejected)
		return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
	}
	c.mu.Lock()
	ci, _ := c.studentLocked(studentID)
	c.mu.Unlock()
	if ci < 0 {
		return Result[domain.Student]{}, fmt.Errorf("%s %s: %w", op, studentID, ErrUnknownStudent)
	}

	sent, err := c.attempt(ctx, op, []string{studentID, in.ClassID}, func(ctx context.Context) error {
		_, err := c.remote.UpdateStudent(ctx, studentID, in)
		return err
	})
	if err != nil {
		return Result[domain.Student]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ci, si := c.studentLocked(studentID)
	if ci < 0 {
		return Result[domain.Student]{}, fmt.Errorf("%s %s: %w", op, studentID, ErrUnknownStudent)
	}
	updated := c.classes[ci].Clone()
	updated.Students[si].Name = in.Name

	res := Result[domain.Student]{Value: updated.Students[si], State: Confirmed}
	if err := c.cache.UpsertClass(ctx, updated); err != nil {
		return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionUpdateStudent, domain.StudentPayload{
			StudentID: studentID,
			ClassID:   in.ClassID,
			Name:      in.Name,
		})
		if err != nil {
			return Result[domain.Student]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.State = Optimistic
		res.PendingActionID = id
	}
	c.classes[ci] = updated
	c.count(op, string(res.State))
	return res, nil
}

// DeleteStudent removes a student from its roster. Existing records are
// kept in their sessions.
func (c *Coordinator) DeleteStudent(ctx context.Context, studentID string) (Result[string], error) {
	const op = "delete student"
	c.mu.Lock()
	ci, _ := c.studentLocked(studentID)
	c.mu.Unlock()
	if ci < 0 {
		return Result[string]{}, fmt.Errorf("%s %s: %w", op, studentID, ErrUnknownStudent)
	}

	sent, err := c.attempt(ctx, op, []string{studentID}, func(ctx context.Context) error {
		err := c.remote.DeleteStudent(ctx, studentID)
		if remote.CodeOf(err) == remote.CodeNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return Result[string]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ci, si := c.studentLocked(studentID)
	res := Result[string]{Value: studentID, State: Confirmed}
	if ci >= 0 {
		updated := c.classes[ci].Clone()
		updated.Students = append(updated.Students[:si:si], updated.Students[si+1:]...)
		if err := c.cache.UpsertClass(ctx, updated); err != nil {
			return Result[string]{}, fmt.Errorf("%s: %w", op, err)
		}
		c.classes[ci] = updated
	}
	if !sent {
		id, err := c.enqueueLocked(ctx, domain.ActionDeleteStudent, domain.StudentPayload{StudentID: studentID})
		if err != nil {
			return Result[string]{}, fmt.Errorf("%s: %w", op, err)
		}
		res.State = Optimistic
		res.PendingActionID = id
	}
	c.count(op, string(res.State))
	return res, nil
}

// putClassLocked inserts or replaces a class. Caller must hold c.mu.
func (c *Coordinator) putClassLocked(cl domain.ClassRoom) {
	if i := c.classIndexLocked(cl.ID); i >= 0 {
		c.classes[i] = cl.Clone()
		return
	}
	c.classes = append(c.classes, cl.Clone())
}
