package dtos

// EarnPointsRequest credits the caller, or any member when the caller is an admin.
type EarnPointsRequest struct {
	UserID      string                 `json:"userId"`
	Points      int                    `json:"points" binding:"required,gte=1,lte=10000"`
	OrderID     string                 `json:"orderId" binding:"max=128"`
	Description string                 `json:"description" binding:"max=255"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type RedeemPointsRequest struct {
	Points      int                    `json:"points" binding:"required,gte=1"`
	RewardID    string                 `json:"rewardId" binding:"required"`
	Description string                 `json:"description" binding:"max=255"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type MarkCouponUsedRequest struct {
	OrderID  string                 `json:"orderId" binding:"max=128"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ReferralRequest claims a referral. NewUserID defaults to the caller.
type ReferralRequest struct {
	ReferrerID   string `json:"referrerId" binding:"required"`
	NewUserID    string `json:"newUserId"`
	ReferralCode string `json:"referralCode" binding:"required"`
}

type SetBirthdayRequest struct {
	Birthday string `json:"birthday" binding:"required,len=5"`
}

type AdminAdjustRequest struct {
	UserID   string                 `json:"userId" binding:"required"`
	Delta    int                    `json:"delta" binding:"required"`
	Reason   string                 `json:"reason" binding:"required,max=500"`
	Metadata map[string]interface{} `json:"metadata"`
}
