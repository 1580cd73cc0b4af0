// Package events turns the upstream provider's assorted webhook envelopes
// into one canonical normalized form: status vocabulary, money units, and a
// tagged-union normalizer keyed on the envelope's discriminant field.
package events

import "orderbridge/internal/model"

// statusTable maps every known upstream spelling, including the legacy
// upper-snake variants, to one canonical status.
var statusTable = map[string]string{
    "Unconfirmed":      model.StatusUnconfirmed,
    "UNCONFIRMED":      model.StatusUnconfirmed,
    "WaitCooking":      model.StatusWaitingCooking,
    "WaitingCooking":   model.StatusWaitingCooking,
    "WAIT_COOKING":     model.StatusWaitingCooking,
    "ReadyForCooking":  model.StatusReadyForCooking,
    "READY_FOR_COOKING": model.StatusReadyForCooking,
    "CookingStarted":   model.StatusCookingStarted,
    "COOKING_STARTED":  model.StatusCookingStarted,
    "CookingCompleted": model.StatusCookingCompleted,
    "COOKING_COMPLETED": model.StatusCookingCompleted,
    "Waiting":          model.StatusWaitingCourier,
    "WaitingCourier":   model.StatusWaitingCourier,
    "WAITING":          model.StatusWaitingCourier,
    "OnWay":            model.StatusOnWay,
    "ON_WAY":           model.StatusOnWay,
    "Delivered":        model.StatusDelivered,
    "DELIVERED":        model.StatusDelivered,
    "Closed":           model.StatusClosed,
    "CLOSED":           model.StatusClosed,
    "Cancelled":        model.StatusCancelled,
    "CANCELLED":        model.StatusCancelled,
}

// MapStatus resolves a wire status spelling to its canonical form. Unknown
// spellings come back unchanged with mapped=false so callers can log them;
// they are never dropped.
func MapStatus(raw string) (status string, mapped bool) {
    if raw == "" { return "", false }
    if canonical, ok := statusTable[raw]; ok { return canonical, true }
    return raw, false
}
