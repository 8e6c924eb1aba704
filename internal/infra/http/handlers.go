package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spok95/stockdesk/internal/app/inventory"
	"github.com/Spok95/stockdesk/internal/app/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/errs"
	invdomain "github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	stdomain "github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/export"
)

// users

func (a *API) createUser(c *gin.Context) {
	if caller(c).Role != users.RoleSystemAdmin {
		a.fail(c, errs.Forbidden("only a system admin may register users"))
		return
	}
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	u, err := a.users.Create(c.Request.Context(), users.New{
		Username: req.Username, RealName: req.RealName, Role: users.Role(req.Role), TelegramID: req.TelegramID,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUser(*u))
}

// materials

func (a *API) listMaterials(c *gin.Context) {
	var q materialQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		a.badRequest(c, err)
		return
	}
	page, err := a.ledger.ListMaterials(c.Request.Context(), materials.ListFilter{
		Category: materials.Category(q.Category), LowOnly: q.LowStock, Page: q.Page, PageSize: q.PageSize,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	list := make([]materialView, 0, len(page.List))
	for _, m := range page.List {
		list = append(list, toMaterial(m))
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "meta": meta(page.Page, page.PageSize, page.Total)})
}

func (a *API) createMaterial(c *gin.Context) {
	var req createMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	m, err := a.ledger.CreateMaterial(c.Request.Context(), materials.New{
		Code:         req.MaterialCode,
		Name:         req.MaterialName,
		Category:     materials.Category(req.Category),
		Unit:         req.Unit,
		InitialStock: req.CurrentStock,
		MinStock:     req.MinStock,
		MaxStock:     req.MaxStock,
		Location:     req.Location,
		Description:  req.Description,
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMaterial(*m))
}

func (a *API) getMaterial(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	m, err := a.ledger.GetMaterial(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMaterial(*m))
}

func (a *API) updateMaterial(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	var req updateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	u := materials.Update{
		Code:        req.MaterialCode,
		Name:        req.MaterialName,
		Unit:        req.Unit,
		MinStock:    req.MinStock,
		MaxStock:    req.MaxStock,
		Location:    req.Location,
		Description: req.Description,
	}
	if req.Category != nil {
		cat := materials.Category(*req.Category)
		u.Category = &cat
	}
	m, err := a.ledger.UpdateMaterial(c.Request.Context(), id, u, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMaterial(*m))
}

func (a *API) materialHistory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		a.badRequest(c, err)
		return
	}
	entries, err := a.inventory.History(c.Request.Context(), id, q.Limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toHistory(entries)})
}

func (a *API) exportHistory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	m, err := a.ledger.GetMaterial(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	entries, err := a.ledger.History(ctx, id, 0)
	if err != nil {
		a.fail(c, err)
		return
	}
	data, err := export.StockHistory(*m, entries, a.loc)
	if err != nil {
		a.fail(c, fmt.Errorf("export history: %w", err))
		return
	}
	sendXLSX(c, fmt.Sprintf("stock_history_%s_%s.xlsx", m.Code, time.Now().In(a.loc).Format("20060102_150405")), data)
}

// transactions

func (a *API) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.inventory.Create(c.Request.Context(), inventory.CreateRequest{
		Type:       invdomain.Type(req.TransactionType),
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Remark:     req.Remark,
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": res.ID, "transaction_code": res.Code, "status": res.Status})
}

func (a *API) listTransactions(c *gin.Context) {
	var q transactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		a.badRequest(c, err)
		return
	}
	page, err := a.inventory.List(c.Request.Context(), inventory.Filter{
		Page:       q.Page,
		PageSize:   q.PageSize,
		Status:     invdomain.Status(q.Status),
		Type:       invdomain.Type(q.Type),
		MaterialID: q.MaterialID,
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	list := make([]transactionView, 0, len(page.List))
	for _, t := range page.List {
		list = append(list, toTransaction(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "meta": meta(page.Page, page.PageSize, page.Total)})
}

func (a *API) getTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	t, err := a.inventory.Get(c.Request.Context(), id, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransaction(*t))
}

func (a *API) decideTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.inventory.Decide(c.Request.Context(), id, invdomain.Action(req.Action), caller(c), req.Remark)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ID, "status": res.Status})
}

func (a *API) cancelTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	if err := a.inventory.Cancel(c.Request.Context(), id, caller(c)); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// stocktaking

func (a *API) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.stocktaking.CreateTask(c.Request.Context(), stocktaking.CreateTaskRequest{
		Name:        req.TaskName,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		MaterialIDs: req.MaterialIDs,
		Remark:      req.Remark,
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": res.ID, "task_code": res.Code, "item_count": res.ItemCount})
}

func (a *API) listTasks(c *gin.Context) {
	var q taskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		a.badRequest(c, err)
		return
	}
	page, err := a.stocktaking.List(c.Request.Context(), stocktaking.Filter{
		Page: q.Page, PageSize: q.PageSize, Status: stdomain.Status(q.Status),
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	list := make([]taskView, 0, len(page.List))
	for _, t := range page.List {
		list = append(list, toTask(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "meta": meta(page.Page, page.PageSize, page.Total)})
}

func (a *API) getTask(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	d, err := a.stocktaking.Get(c.Request.Context(), id, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": toTask(d.Task), "items": toItems(d.Items)})
}

func (a *API) recordCount(c *gin.Context) {
	taskID, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.stocktaking.RecordCount(c.Request.Context(), taskID, itemID, *req.ActualStock, req.Remark)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":         res.ItemID,
		"actual_stock":    res.ActualStock,
		"difference":      res.Difference,
		"difference_type": res.DifferenceType,
	})
}

func (a *API) completeTask(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	rep, err := a.stocktaking.Complete(c.Request.Context(), id, stocktaking.CompleteRequest{
		UpdateStock: req.UpdateStock, Remark: req.Remark,
	}, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReport(rep))
}

func (a *API) cancelTask(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	if err := a.stocktaking.Cancel(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) taskReport(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	if _, err := a.stocktaking.Get(c.Request.Context(), id, caller(c)); err != nil {
		a.fail(c, err)
		return
	}
	rep, err := a.stocktaking.Report(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReport(rep))
}

func (a *API) exportReport(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	d, err := a.stocktaking.Get(ctx, id, caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	rep, err := a.stocktaking.Report(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	data, err := export.StocktakingReport(d.Task, rep)
	if err != nil {
		a.fail(c, fmt.Errorf("export report: %w", err))
		return
	}
	sendXLSX(c, fmt.Sprintf("stocktaking_%s.xlsx", d.Task.Code), data)
}
