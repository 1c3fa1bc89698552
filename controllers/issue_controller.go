// controllers/issue_controller.go
package controllers

import (
	"net/http"

	"hardware_ledger/app"
	"hardware_ledger/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IssueController struct{ *Srv }

func NewIssueController(s *Srv) *IssueController { return &IssueController{Srv: s} }

const missingIssueFields = "Missing required fields: hardwareId or hardwareCode, studentId, studentName, and dueDate."

type issueReq struct {
	HardwareID   string  `json:"hardwareId"`
	HardwareCode string  `json:"hardwareCode"`
	StudentID    string  `json:"studentId" binding:"required"`
	StudentName  string  `json:"studentName" binding:"required"`
	Contact      string  `json:"contact"`
	Department   string  `json:"department"`
	Semester     string  `json:"semester"`
	Period       string  `json:"period"`
	Remarks      string  `json:"remarks"`
	IssueDate    *string `json:"issueDate"`
	DueDate      string  `json:"dueDate" binding:"required"`
}

func (r issueReq) input() (ledger.IssueInput, error) {
	due, err := ledger.ParseDate("dueDate", r.DueDate)
	if err != nil {
		return ledger.IssueInput{}, err
	}
	issued, err := optionalDate("issueDate", r.IssueDate)
	if err != nil {
		return ledger.IssueInput{}, err
	}
	return ledger.IssueInput{
		HardwareID:   r.HardwareID,
		HardwareCode: r.HardwareCode,
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		Contact:      r.Contact,
		Department:   r.Department,
		Semester:     r.Semester,
		Period:       r.Period,
		Remarks:      r.Remarks,
		IssueDate:    issued,
		DueDate:      &due,
	}, nil
}

// 未登记的编号：先登记物品再借出
type registerReq struct {
	issueReq
	Name            string `json:"name"`
	TotalCount      *int   `json:"totalCount" binding:"omitempty,gte=0"`
	HardwareRemarks string `json:"hardwareRemarks"`
}

// 可修改字段白名单；hardwareId/status 不可改
type issuePatchReq struct {
	StudentID   *string `json:"studentId"`
	StudentName *string `json:"studentName"`
	Contact     *string `json:"contact"`
	Department  *string `json:"department"`
	Semester    *string `json:"semester"`
	Period      *string `json:"period"`
	Remarks     *string `json:"remarks"`
	IssueDate   *string `json:"issueDate"`
	DueDate     *string `json:"dueDate"`
}

func (r issuePatchReq) patch() (ledger.LoanPatch, error) {
	issued, err := optionalDate("issueDate", r.IssueDate)
	if err != nil {
		return ledger.LoanPatch{}, err
	}
	due, err := optionalDate("dueDate", r.DueDate)
	if err != nil {
		return ledger.LoanPatch{}, err
	}
	return ledger.LoanPatch{
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Contact:     r.Contact,
		Department:  r.Department,
		Semester:    r.Semester,
		Period:      r.Period,
		Remarks:     r.Remarks,
		IssueDate:   issued,
		DueDate:     due,
	}, nil
}

// POST /api/hardware/issues
func (ic *IssueController) Issue(c *gin.Context) {
	var req issueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, missingIssueFields)
		return
	}
	in, err := req.input()
	if err != nil {
		ic.fail(c, err, "Unable to issue hardware.")
		return
	}
	loan, err := ic.Tracker.Issue(c.Request.Context(), in)
	if err != nil {
		ic.fail(c, err, "Unable to issue hardware.",
			zap.String("op", "issue.create"),
			zap.String("item_id", in.HardwareID),
			zap.String("code", in.HardwareCode),
		)
		return
	}
	c.JSON(http.StatusCreated, app.H{"message": "Hardware issued successfully.", "data": loan})
}

// POST /api/hardware/issues/register
func (ic *IssueController) RegisterAndIssue(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, missingIssueFields)
		return
	}
	in, err := req.input()
	if err != nil {
		ic.fail(c, err, "Unable to issue hardware.")
		return
	}
	loan, created, err := ic.Tracker.RegisterAndIssue(c.Request.Context(), ledger.RegisterInput{
		IssueInput:  in,
		Name:        req.Name,
		TotalCount:  req.TotalCount,
		ItemRemarks: req.HardwareRemarks,
	})
	if err != nil {
		ic.fail(c, err, "Unable to issue hardware.", zap.String("op", "issue.register"), zap.String("code", in.HardwareCode))
		return
	}
	msg := "Hardware issued successfully."
	if created {
		msg = "Hardware registered and issued successfully."
	}
	c.JSON(http.StatusCreated, app.H{"message": msg, "data": loan, "registered": created})
}

// POST /api/hardware/issues/:id/return
func (ic *IssueController) Return(c *gin.Context) {
	id := c.Param("id")
	loan, err := ic.Tracker.Return(c.Request.Context(), id)
	if err != nil {
		ic.fail(c, err, "Unable to return hardware.", zap.String("op", "issue.return"), zap.String("loan_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Hardware returned successfully.", "data": loan})
}

// GET /api/hardware/issues/active
func (ic *IssueController) ListActive(c *gin.Context) {
	ls, err := ic.Tracker.ListActive(c.Request.Context())
	if err != nil {
		ic.fail(c, err, "Unable to fetch active issues.", zap.String("op", "issue.list_active"))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": ls})
}

// GET /api/hardware/issues/history
func (ic *IssueController) ListHistory(c *gin.Context) {
	ls, err := ic.Tracker.ListHistory(c.Request.Context())
	if err != nil {
		ic.fail(c, err, "Unable to fetch issue history.", zap.String("op", "issue.list_history"))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": ls})
}

// GET /api/hardware/issues/due-today
func (ic *IssueController) ListDueToday(c *gin.Context) {
	ls, err := ic.Tracker.ListDueToday(c.Request.Context())
	if err != nil {
		ic.fail(c, err, "Unable to fetch due-today issues.", zap.String("op", "issue.list_due_today"))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": ls})
}

// GET /api/hardware/issues/overdue
func (ic *IssueController) ListOverdue(c *gin.Context) {
	ls, err := ic.Tracker.ListOverdue(c.Request.Context())
	if err != nil {
		ic.fail(c, err, "Unable to fetch overdue issues.", zap.String("op", "issue.list_overdue"))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": ls})
}

// GET /api/hardware/issues/:id
func (ic *IssueController) Get(c *gin.Context) {
	id := c.Param("id")
	loan, err := ic.Tracker.Get(c.Request.Context(), id)
	if err != nil {
		ic.fail(c, err, "Unable to fetch issue.", zap.String("op", "issue.get"), zap.String("loan_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": loan})
}

// PUT /api/hardware/issues/:id
func (ic *IssueController) Update(c *gin.Context) {
	id := c.Param("id")
	var req issuePatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "Invalid request body.")
		return
	}
	p, err := req.patch()
	if err != nil {
		ic.fail(c, err, "Unable to update issue.")
		return
	}
	loan, err := ic.Tracker.Update(c.Request.Context(), id, p)
	if err != nil {
		ic.fail(c, err, "Unable to update issue.", zap.String("op", "issue.update"), zap.String("loan_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Issue updated successfully.", "data": loan})
}

// DELETE /api/hardware/issues/:id
func (ic *IssueController) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := ic.Tracker.Delete(c.Request.Context(), id); err != nil {
		ic.fail(c, err, "Unable to delete issue.", zap.String("op", "issue.delete"), zap.String("loan_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Issue deleted successfully."})
}
