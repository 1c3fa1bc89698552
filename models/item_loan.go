// models/item_loan.go
package models

import "time"

const ItemTable = "hw_items"
const LoanTable = "hw_loans"

type LoanStatus string

const (
	LoanIssued   LoanStatus = "issued"
	LoanReturned LoanStatus = "returned"
)

// Item 一类硬件（同型号多件），按数量出借
type Item struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"size:200;not null" json:"name"`
	Code           *string   `gorm:"size:64;uniqueIndex" json:"code,omitempty"` // 可空；非空时唯一（大写）
	TotalCount     int       `gorm:"not null;default:0;check:chk_hw_items_total,total_count >= 0" json:"totalCount"`
	IssuedCount    int       `gorm:"not null;default:0" json:"issuedCount"`
	AvailableCount int       `gorm:"not null;default:0;check:chk_hw_items_available,available_count >= 0" json:"availableCount"`
	Remarks        string    `gorm:"size:500" json:"remarks"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Loan 一次出借记录：issued -> returned（终态）
type Loan struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID      string     `gorm:"type:uuid;index;not null" json:"itemId"`
	Item        *Item      `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	StudentID   string     `gorm:"size:64;index;not null" json:"studentId"`
	StudentName string     `gorm:"size:200;not null" json:"studentName"`
	Contact     string     `gorm:"size:120" json:"contact"`
	Department  string     `gorm:"size:120" json:"department"`
	Semester    string     `gorm:"size:40" json:"semester"`
	Period      string     `gorm:"size:40" json:"period"`
	Remarks     string     `gorm:"size:500" json:"remarks"`
	IssueDate   time.Time  `gorm:"index;not null" json:"issueDate"`
	DueDate     time.Time  `gorm:"not null" json:"dueDate"`
	ReturnDate  *time.Time `json:"returnDate,omitempty"`
	Status      LoanStatus `gorm:"size:16;not null;default:'issued'" json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }
func (Loan) TableName() string { return LoanTable }

func (l *Loan) IsOpen() bool { return l.Status == LoanIssued }
