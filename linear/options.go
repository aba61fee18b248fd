package linear

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// WithRidge adds alpha·I to the normal equations (the intercept is not
// penalised). Zero gives ordinary least squares.
func WithRidge(alpha float64) Option {
	return func(lr *LinearRegression) {
		lr.ridge = alpha
	}
}
