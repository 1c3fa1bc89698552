// controllers/hardware_controller.go
package controllers

import (
	"net/http"

	"hardware_ledger/app"
	"hardware_ledger/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HardwareController struct{ *Srv }

func NewHardwareController(s *Srv) *HardwareController { return &HardwareController{Srv: s} }

// 数量用指针：区分“未提供”和显式 0
type hardwareReq struct {
	Name           string  `json:"name" binding:"required"`
	Code           *string `json:"code"`
	TotalCount     *int    `json:"totalCount" binding:"required,gte=0"`
	IssuedCount    *int    `json:"issuedCount" binding:"omitempty,gte=0"`
	AvailableCount *int    `json:"availableCount" binding:"omitempty,gte=0"`
	Remarks        string  `json:"remarks"`
}

func (r hardwareReq) input() ledger.ItemInput {
	return ledger.ItemInput{
		Name:           r.Name,
		Code:           r.Code,
		TotalCount:     r.TotalCount,
		IssuedCount:    r.IssuedCount,
		AvailableCount: r.AvailableCount,
		Remarks:        r.Remarks,
	}
}

const missingHardwareFields = "Missing required fields: name and totalCount."

// GET /api/hardware
func (hc *HardwareController) List(c *gin.Context) {
	items, err := hc.Registry.List(c.Request.Context())
	if err != nil {
		hc.fail(c, err, "Unable to list hardware.", zap.String("op", "hardware.list"))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": items})
}

// GET /api/hardware/:id
func (hc *HardwareController) Get(c *gin.Context) {
	id := c.Param("id")
	it, err := hc.Registry.FindByID(c.Request.Context(), id)
	if err != nil {
		hc.fail(c, err, "Unable to fetch hardware.", zap.String("op", "hardware.get"), zap.String("item_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": it})
}

// GET /api/hardware/code/:code
func (hc *HardwareController) GetByCode(c *gin.Context) {
	code := c.Param("code")
	it, err := hc.Registry.FindByCode(c.Request.Context(), code)
	if err != nil {
		hc.fail(c, err, "Unable to fetch hardware.", zap.String("op", "hardware.get_by_code"), zap.String("code", code))
		return
	}
	c.JSON(http.StatusOK, app.H{"data": it})
}

// POST /api/hardware
func (hc *HardwareController) Create(c *gin.Context) {
	var req hardwareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, missingHardwareFields)
		return
	}
	it, err := hc.Registry.Create(c.Request.Context(), req.input())
	if err != nil {
		hc.fail(c, err, "Unable to create hardware.", zap.String("op", "hardware.create"))
		return
	}
	c.JSON(http.StatusCreated, app.H{"message": "Hardware created successfully.", "data": it})
}

// PUT /api/hardware/:id（整体替换）
func (hc *HardwareController) Update(c *gin.Context) {
	id := c.Param("id")
	var req hardwareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, missingHardwareFields)
		return
	}
	it, err := hc.Registry.Update(c.Request.Context(), id, req.input())
	if err != nil {
		hc.fail(c, err, "Unable to update hardware.", zap.String("op", "hardware.update"), zap.String("item_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Hardware updated successfully.", "data": it})
}

// DELETE /api/hardware/:id
func (hc *HardwareController) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := hc.Registry.Delete(c.Request.Context(), id); err != nil {
		hc.fail(c, err, "Unable to delete hardware.", zap.String("op", "hardware.delete"), zap.String("item_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Hardware deleted successfully."})
}

// POST /api/hardware/:id/reconcile 按未归还记录重算数量
func (hc *HardwareController) Reconcile(c *gin.Context) {
	id := c.Param("id")
	it, err := hc.Registry.Reconcile(c.Request.Context(), id)
	if err != nil {
		hc.fail(c, err, "Unable to reconcile hardware.", zap.String("op", "hardware.reconcile"), zap.String("item_id", id))
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Hardware counts reconciled.", "data": it})
}
