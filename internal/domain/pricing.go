package domain

// PricingDetails is the price breakdown for a stay.
type PricingDetails struct {
	PriceForPeriod    Money
	CleaningFee       Money
	AmenitiesUpCharge Money
	TotalPrice        Money
}

// PricingService computes the price of a period on a unit. Pure and
// deterministic; amounts on the unit are already resolved, so the only
// failure mode is a currency mismatch between them.
type PricingService struct{}

func (PricingService) CalculatePrice(unit *Unit, period DateRange) (PricingDetails, error) {
	currency := unit.NightlyPrice.Currency

	priceForPeriod := unit.NightlyPrice.MulNights(period.Nights())

	amenitiesUpCharge := NewMoney(0, currency)
	for _, amenity := range unit.Amenities {
		sum, err := amenitiesUpCharge.Add(amenity.UpCharge)
		if err != nil {
			return PricingDetails{}, err
		}
		amenitiesUpCharge = sum
	}

	totalPrice := priceForPeriod
	var err error
	if totalPrice, err = totalPrice.Add(unit.CleaningFee); err != nil {
		return PricingDetails{}, err
	}
	if totalPrice, err = totalPrice.Add(amenitiesUpCharge); err != nil {
		return PricingDetails{}, err
	}

	cleaningFee := unit.CleaningFee
	if cleaningFee.IsZero() {
		cleaningFee = NewMoney(0, currency)
	}

	return PricingDetails{
		PriceForPeriod:    priceForPeriod,
		CleaningFee:       cleaningFee,
		AmenitiesUpCharge: amenitiesUpCharge,
		TotalPrice:        totalPrice,
	}, nil
}
